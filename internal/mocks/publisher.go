package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messenger/internal/telemetry"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Envelopes returns every AuditEnvelope passed to Publish, in call order.
func (m *PublisherMock) Envelopes() []telemetry.AuditEnvelope {
	var out []telemetry.AuditEnvelope
	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}
		if env, ok := call.Arguments.Get(2).(telemetry.AuditEnvelope); ok {
			out = append(out, env)
		}
	}
	return out
}

var _ telemetry.Publisher = (*PublisherMock)(nil)
