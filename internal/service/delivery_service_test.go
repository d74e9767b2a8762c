package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tgshopbot/internal/models"
)

type fakeAutodeliveryStore struct {
	records map[int64]*models.Autodelivery
}

func (f *fakeAutodeliveryStore) GetByProduct(_ context.Context, productID int64) (*models.Autodelivery, error) {
	rec, ok := f.records[productID]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

type fakeSender struct {
	messages  []string
	photos    []string
	documents []string
	err       error
}

func (f *fakeSender) SendMessage(_ int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeSender) SendPhoto(_ int64, fileURL, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.photos = append(f.photos, fileURL)
	return nil
}

func (f *fakeSender) SendDocument(_ int64, fileURL, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.documents = append(f.documents, fileURL)
	return nil
}

func newDeliveryService(records map[int64]*models.Autodelivery, sender *fakeSender) *DeliveryService {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDeliveryService(log, &fakeAutodeliveryStore{records: records}, sender)
}

func TestDeliveryService_TextContent(t *testing.T) {
	sender := &fakeSender{}
	svc := newDeliveryService(map[int64]*models.Autodelivery{
		7: {ProductID: 7, Enabled: true, ContentText: "KEY-1234"},
	}, sender)

	sent, err := svc.Deliver(context.Background(), &models.Purchase{ID: 1, ProductID: 7}, 42)
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "KEY-1234")
}

func TestDeliveryService_TextWinsOverFile(t *testing.T) {
	sender := &fakeSender{}
	svc := newDeliveryService(map[int64]*models.Autodelivery{
		7: {ProductID: 7, Enabled: true, ContentText: "KEY", FileURL: "https://cdn.example/a.pdf"},
	}, sender)

	sent, err := svc.Deliver(context.Background(), &models.Purchase{ID: 1, ProductID: 7}, 42)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Len(t, sender.messages, 1)
	assert.Empty(t, sender.documents)
}

func TestDeliveryService_FileClassification(t *testing.T) {
	tests := []struct {
		name    string
		fileURL string
		asPhoto bool
	}{
		{name: "jpeg", fileURL: "https://cdn.example/media/pic.JPG", asPhoto: true},
		{name: "png with query", fileURL: "https://cdn.example/media/pic.png?v=2", asPhoto: true},
		{name: "webp", fileURL: "https://cdn.example/media/pic.webp", asPhoto: true},
		{name: "pdf", fileURL: "https://cdn.example/media/manual.pdf", asPhoto: false},
		{name: "zip", fileURL: "https://cdn.example/media/bundle.zip", asPhoto: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			svc := newDeliveryService(map[int64]*models.Autodelivery{
				7: {ProductID: 7, Enabled: true, FileURL: tt.fileURL},
			}, sender)

			sent, err := svc.Deliver(context.Background(), &models.Purchase{ID: 1, ProductID: 7}, 42)
			require.NoError(t, err)
			assert.True(t, sent)
			if tt.asPhoto {
				assert.Len(t, sender.photos, 1)
				assert.Empty(t, sender.documents)
			} else {
				assert.Len(t, sender.documents, 1)
				assert.Empty(t, sender.photos)
			}
		})
	}
}

func TestDeliveryService_DisabledOrMissing(t *testing.T) {
	sender := &fakeSender{}
	svc := newDeliveryService(map[int64]*models.Autodelivery{
		7: {ProductID: 7, Enabled: false, ContentText: "KEY"},
	}, sender)

	sent, err := svc.Deliver(context.Background(), &models.Purchase{ID: 1, ProductID: 7}, 42)
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = svc.Deliver(context.Background(), &models.Purchase{ID: 2, ProductID: 8}, 42)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, sender.messages)
}

func TestDeliveryService_EnabledWithoutContent(t *testing.T) {
	sender := &fakeSender{}
	svc := newDeliveryService(map[int64]*models.Autodelivery{
		7: {ProductID: 7, Enabled: true},
	}, sender)

	sent, err := svc.Deliver(context.Background(), &models.Purchase{ID: 1, ProductID: 7}, 42)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestDeliveryService_TransportError(t *testing.T) {
	sender := &fakeSender{err: errors.New("blocked by user")}
	svc := newDeliveryService(map[int64]*models.Autodelivery{
		7: {ProductID: 7, Enabled: true, ContentText: "KEY"},
	}, sender)

	sent, err := svc.Deliver(context.Background(), &models.Purchase{ID: 1, ProductID: 7}, 42)
	assert.Error(t, err)
	assert.False(t, sent)
}
