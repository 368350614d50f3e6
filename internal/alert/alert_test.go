package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

func testMessage() types.Message {
	return types.Message{
		RunID:     "01JABCDEF",
		Title:     "NF-e run 15/01/2026 08:00",
		Text:      "*IMPORT*\n- 1001 OK\n- 1002 ERROR",
		Timestamp: time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC),
	}
}

func TestConsoleSink_Send(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	assert.Equal(t, "console", sink.Name())

	require.NoError(t, sink.Send(context.Background(), testMessage()))
	out := buf.String()
	assert.Contains(t, out, "NF-e run 15/01/2026 08:00")
	assert.Contains(t, out, "- 1001 OK")
	assert.Contains(t, out, "1002")
}

func TestWebhookSink_Send_Success(t *testing.T) {
	var got types.Message
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	require.NoError(t, sink.Send(context.Background(), testMessage()))
	assert.Equal(t, "01JABCDEF", got.RunID)
	assert.Equal(t, testMessage().Text, got.Text)
}

func TestWebhookSink_Send_ServerError(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := NewWebhookSink(ts.URL).Send(context.Background(), testMessage())
	assert.ErrorContains(t, err, "status 500")
	assert.Equal(t, 1, calls, "notifications are never retried")
}

func TestFileSink_Send(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "runs.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, testMessage()))
	require.NoError(t, sink.Send(ctx, testMessage()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var got types.Message
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "NF-e run 15/01/2026 08:00", got.Title)

	d := NewDispatcherWithSinks(nil, sink)
	require.NoError(t, d.Close())
	assert.ErrorIs(t, sink.Send(ctx, testMessage()), os.ErrClosed)
}

func TestWebhookSink_RejectionIncludesBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid_payload"))
	}))
	defer ts.Close()

	err := NewWebhookSink(ts.URL, WithHTTPClient(ts.Client())).Send(context.Background(), testMessage())
	assert.ErrorContains(t, err, "status 400: invalid_payload")
}

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSSink_Send(t *testing.T) {
	mock := &mockSQS{}
	sink, err := NewSQSSink(context.Background(), "https://sqs.sa-east-1.amazonaws.com/1/reports", WithSQSClient(mock))
	require.NoError(t, err)
	assert.Equal(t, "sqs", sink.Name())

	require.NoError(t, sink.Send(context.Background(), testMessage()))
	require.Len(t, mock.inputs, 1)
	assert.Equal(t, "https://sqs.sa-east-1.amazonaws.com/1/reports", aws.ToString(mock.inputs[0].QueueUrl))
	assert.Contains(t, aws.ToString(mock.inputs[0].MessageBody), `"runId":"01JABCDEF"`)
	assert.Equal(t, "01JABCDEF", aws.ToString(mock.inputs[0].MessageAttributes["runId"].StringValue))
}

func TestNewSQSSink_RequiresQueue(t *testing.T) {
	_, err := NewSQSSink(context.Background(), "", WithSQSClient(&mockSQS{}))
	assert.Error(t, err)
}

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "failing" }
func (f *failingSink) Send(context.Context, types.Message) error {
	f.calls++
	return errors.New("unreachable")
}

func TestDispatcher_BestEffort(t *testing.T) {
	var buf bytes.Buffer
	bad := &failingSink{}
	d := NewDispatcherWithSinks(nil, bad, NewConsoleSink(&buf))

	n := d.Send(context.Background(), testMessage())
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, bad.calls)
	assert.Contains(t, buf.String(), "1001")
}

func TestNewDispatcher(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alerts.jsonl")

	d, err := NewDispatcher(ctx, []types.AlertConfig{
		{Type: types.AlertConsole},
		{Type: types.AlertFile, Path: path},
		{Type: types.AlertWebhook, URL: "http://127.0.0.1:1/hook"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, d.sinks, 3)

	tests := []types.AlertConfig{
		{Type: types.AlertWebhook},
		{Type: types.AlertFile},
		{Type: types.AlertSQS},
		{Type: "pager"},
	}
	for _, cfg := range tests {
		_, err := NewDispatcher(ctx, []types.AlertConfig{cfg}, nil)
		assert.Error(t, err, string(cfg.Type))
	}
}
