package extract

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/MASanner/findbottomlessmimosas-com/pkg/anthropic"
)

type mockExtractor struct {
	mock.Mock
	name string
}

func (m *mockExtractor) Name() string { return m.name }

func (m *mockExtractor) Extract(ctx context.Context, url string) (*Extraction, error) {
	args := m.Called(ctx, url)
	if v := args.Get(0); v != nil {
		return v.(*Extraction), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*anthropic.MessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}
