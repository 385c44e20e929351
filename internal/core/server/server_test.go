package server

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/network"
)

func twoProcesses() *cloudbalance.Problem {
	return &cloudbalance.Problem{
		Computers: []*cloudbalance.Computer{{ID: 1, CPUPower: 4, Memory: 4, NetworkBandwidth: 4, Cost: 10}},
		Processes: []*cloudbalance.Process{{ID: 1, RequiredCPU: 3}, {ID: 2, RequiredCPU: 3}},
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	service *ScoreService
	client  *ScoreServiceClient
	conn    *grpc.ClientConn
	logs    *syncBuffer
}

func startServer(t *testing.T, p *cloudbalance.Problem, opts network.Options, timeout time.Duration) *harness {
	t.Helper()
	session, err := cloudbalance.NewSession(p, cloudbalance.Constraints{}, opts)
	require.NoError(t, err)
	service, err := NewScoreService(session)
	require.NoError(t, err)

	logs := &syncBuffer{}
	log := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv, err := NewGRPCServer(config.ServerConfig{RequestTimeout: timeout}, service, log)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{service: service, client: NewScoreServiceClient(conn), conn: conn, logs: logs}
}

func id(v int64) *int64 { return &v }

func scoreField(resp *structpb.Struct) string {
	return resp.GetFields()["score"].GetStringValue()
}

func TestScoreService_Health(t *testing.T) {
	h := startServer(t, twoProcesses(), network.Options{}, time.Second)

	resp, err := grpc_health_v1.NewHealthClient(h.conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

func TestScoreService_GetScore(t *testing.T) {
	h := startServer(t, twoProcesses(), network.Options{Policy: network.MatchScoreOnly}, time.Second)

	resp, err := h.client.GetScore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0hard/-2medium/0soft", scoreField(resp))
	assert.True(t, resp.GetFields()["feasible"].GetBoolValue())
	assert.Equal(t, "score_only", resp.GetFields()["policy"].GetStringValue())

	constraints := resp.GetFields()["constraints"].GetListValue().GetValues()
	require.NotEmpty(t, constraints)
	found := false
	for _, c := range constraints {
		fields := c.GetStructValue().GetFields()
		if fields["name"].GetStringValue() == cloudbalance.UnassignedProcess {
			found = true
			assert.Equal(t, float64(2), fields["count"].GetNumberValue())
		}
	}
	assert.True(t, found, "unassigned process constraint missing from %v", constraints)

	parsed, err := ScoreOf(cloudbalance.Definition, resp)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), parsed.Int64(1))
}

func TestScoreService_GetScoreWithoutMatches(t *testing.T) {
	h := startServer(t, twoProcesses(), network.Options{}, time.Second)

	resp, err := h.client.GetScore(context.Background())
	require.NoError(t, err)
	_, ok := resp.GetFields()["constraints"]
	assert.False(t, ok)
}

func TestScoreService_AssignAndEvaluate(t *testing.T) {
	h := startServer(t, twoProcesses(), network.Options{Assert: true}, time.Second)
	ctx := context.Background()

	eval, err := h.client.Evaluate(ctx, 1, id(1))
	require.NoError(t, err)
	assert.Equal(t, "0hard/-1medium/-10soft", scoreField(eval))

	resp, err := h.client.GetScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0hard/-2medium/0soft", scoreField(resp), "Evaluate must not change the session")

	_, err = h.client.Assign(ctx, 1, id(1))
	require.NoError(t, err)
	resp, err = h.client.Assign(ctx, 2, id(1))
	require.NoError(t, err)
	assert.Equal(t, "-2hard/0medium/-10soft", scoreField(resp))
	assert.False(t, resp.GetFields()["feasible"].GetBoolValue())

	resp, err = h.client.Assign(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "0hard/-1medium/-10soft", scoreField(resp))
}

func TestScoreService_InvalidArguments(t *testing.T) {
	h := startServer(t, twoProcesses(), network.Options{}, time.Second)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"missing process", map[string]any{"computer": 1}},
		{"unknown process", map[string]any{"process": 9}},
		{"unknown computer", map[string]any{"process": 1, "computer": 9}},
		{"fractional id", map[string]any{"process": 1.5}},
		{"string id", map[string]any{"process": "one"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)
			err = h.conn.Invoke(ctx, "/"+ServiceName+"/Assign", in, new(structpb.Struct))
			assert.Equal(t, codes.InvalidArgument, status.Code(err), "err = %v", err)
		})
	}
}

func TestScoreService_DeadlineWhileBusy(t *testing.T) {
	h := startServer(t, twoProcesses(), network.Options{}, 50*time.Millisecond)

	// Hold the session so the request waits out the server timeout.
	h.service.sem <- struct{}{}
	defer h.service.unlock()

	_, err := h.client.GetScore(context.Background())
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err), "err = %v", err)
	assert.Contains(t, h.logs.String(), "request failed")
}

func TestScoreService_ConcurrentAssignments(t *testing.T) {
	p := cloudbalance.Generate(cloudbalance.GeneratorConfig{Computers: 4, Processes: 20, Services: 3}, 8)
	h := startServer(t, p.Clone(), network.Options{Policy: network.MatchScoreOnly}, 5*time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, len(p.Processes))
	for i, proc := range p.Processes {
		wg.Add(1)
		go func(i int, pid int64) {
			defer wg.Done()
			comp := p.Computers[i%len(p.Computers)].ID
			if _, err := h.client.Assign(ctx, pid, &comp); err != nil {
				errs <- err
			}
		}(i, proc.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i, proc := range p.Processes {
		c := p.Computers[i%len(p.Computers)]
		cid := c.ID
		proc.Computer, proc.ComputerID = c, &cid
	}
	fresh, err := cloudbalance.NewSession(p, cloudbalance.Constraints{}, network.Options{})
	require.NoError(t, err)
	want, err := fresh.Score()
	require.NoError(t, err)

	resp, err := h.client.GetScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.String(), scoreField(resp))
}
