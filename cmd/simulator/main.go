package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

var (
	serverURL      = flag.String("server", "ws://localhost:9000/ocpp", "Gateway websocket URL")
	serial         = flag.String("serial", "SIM001", "Charge point serial")
	vendor         = flag.String("vendor", "GridFleet", "Charge point vendor")
	model          = flag.String("model", "SimulatorV1", "Charge point model")
	firmware       = flag.String("firmware", "1.0.0", "Firmware version")
	connectorCount = flag.Int("connectors", 2, "Number of connectors")
	interactive    = flag.Bool("interactive", false, "Enable interactive mode")
	verbose        = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sim := NewSimulator(Config{
		ServerURL:       *serverURL,
		Serial:          *serial,
		Vendor:          *vendor,
		Model:           *model,
		FirmwareVersion: *firmware,
		ConnectorCount:  *connectorCount,
	}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		sim.Stop()
		os.Exit(0)
	}()

	if err := sim.Connect(); err != nil {
		logger.Fatal("Failed to connect to gateway", zap.Error(err))
	}

	if *interactive {
		runInteractiveMode(sim)
	} else {
		fmt.Printf("OCPP charge point simulator started\n")
		fmt.Printf("  Serial: %s\n", *serial)
		fmt.Printf("  Server: %s\n", *serverURL)
		fmt.Println("\nPress Ctrl+C to stop")
		select {}
	}
}

func runInteractiveMode(sim *Simulator) {
	fmt.Println("\nOCPP charge point simulator - interactive mode")
	fmt.Println("Commands: start <connector> <idTag> | stop | status <connector> <state> | meter <wh> | fault <connector> | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "start":
			connector := 1
			idTag := "SIM-TAG"
			if len(parts) > 1 {
				connector, _ = strconv.Atoi(parts[1])
			}
			if len(parts) > 2 {
				idTag = parts[2]
			}
			if err := sim.StartCharging(connector, idTag); err != nil {
				fmt.Println("error:", err)
			}
		case "stop":
			if err := sim.StopCharging("Local"); err != nil {
				fmt.Println("error:", err)
			}
		case "status":
			if len(parts) < 3 {
				fmt.Println("usage: status <connector> <state>")
				continue
			}
			connector, _ := strconv.Atoi(parts[1])
			sim.SetConnectorStatus(connector, parts[2], "NoError")
		case "meter":
			if len(parts) < 2 {
				fmt.Println("usage: meter <wh>")
				continue
			}
			wh, _ := strconv.Atoi(parts[1])
			sim.SendMeterValue(wh)
		case "fault":
			connector := 1
			if len(parts) > 1 {
				connector, _ = strconv.Atoi(parts[1])
			}
			sim.SetConnectorStatus(connector, "Faulted", "OtherError")
		case "quit", "exit":
			sim.Stop()
			return
		default:
			fmt.Println("Unknown command:", parts[0])
		}
	}
}
