package handlers

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
)

type mockChatService struct {
	ChatFunc      func(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)
	GetSchemaFunc func(ctx context.Context) (*models.SchemaSummary, error)

	chatCalls int
	lastReq   *models.ChatRequest
}

func (m *mockChatService) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	m.chatCalls++
	m.lastReq = req
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return nil, errors.New("ChatFunc not set")
}

func (m *mockChatService) GetSchema(ctx context.Context) (*models.SchemaSummary, error) {
	if m.GetSchemaFunc != nil {
		return m.GetSchemaFunc(ctx)
	}
	return &models.SchemaSummary{Tables: []models.Table{}}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.err
}
