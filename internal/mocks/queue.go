package mocks

// MockMessageQueue is a mock implementation of MessageQueue
type MockMessageQueue struct {
	PublishFunc   func(subject string, data []byte) error
	SubscribeFunc func(subject string, handler func(data []byte) error) error
	CloseFunc     func() error
}

func (m *MockMessageQueue) Publish(subject string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(subject, data)
	}
	return nil
}

func (m *MockMessageQueue) Subscribe(subject string, handler func(data []byte) error) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(subject, handler)
	}
	return nil
}

func (m *MockMessageQueue) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
