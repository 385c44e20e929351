package server

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/score"
	"github.com/solatis/scorekeeper/internal/types"
)

// Error mapping:
//   - unknown process or computer ids map to INVALID_ARGUMENT
//   - a corrupted network maps to INTERNAL; every later call fails the same way
//   - waiting for the session past the deadline maps to DEADLINE_EXCEEDED

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "scorekeeper.v1.ScoreService"

// ScoreService serves one cloud balance session. Requests are serialized:
// the network is never touched by two goroutines.
type ScoreService struct {
	session *cloudbalance.Session
	// sem is a one-slot lock that can be abandoned when ctx ends.
	sem chan struct{}
}

// NewScoreService wraps session.
func NewScoreService(session *cloudbalance.Session) (*ScoreService, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	return &ScoreService{session: session, sem: make(chan struct{}, 1)}, nil
}

func (s *ScoreService) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return status.FromContextError(ctx.Err()).Err()
	}
}

func (s *ScoreService) unlock() { <-s.sem }

// GetScore returns the current score and, when recorded, per-constraint totals.
func (s *ScoreService) GetScore(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	return s.report()
}

// Assign moves a process to a computer. Request fields: "process" (id) and
// "computer" (id, or null/absent to unassign). Returns the new score.
func (s *ScoreService) Assign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	m, err := s.parseMove(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.session.Do(m); err != nil {
		return nil, networkError(err)
	}
	return s.report()
}

// Evaluate returns the score an Assign request would produce without applying it.
func (s *ScoreService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	m, err := s.parseMove(req)
	if err != nil {
		return nil, err
	}
	sc, err := s.session.Evaluate(m)
	if err != nil {
		return nil, networkError(err)
	}
	return structpb.NewStruct(map[string]any{
		"score":    sc.String(),
		"feasible": sc.IsFeasible(),
	})
}

func (s *ScoreService) parseMove(req *structpb.Struct) (cloudbalance.Move, error) {
	fields := req.GetFields()
	pv, ok := fields["process"]
	if !ok {
		return cloudbalance.Move{}, status.Error(codes.InvalidArgument, "missing field: process")
	}
	pid, err := integer(pv)
	if err != nil {
		return cloudbalance.Move{}, status.Error(codes.InvalidArgument, fmt.Sprintf("process: %v", err))
	}
	p := s.session.Problem()
	m := cloudbalance.Move{Process: p.ProcessIndex(pid), Computer: -1}
	if m.Process < 0 {
		return cloudbalance.Move{}, status.Error(codes.InvalidArgument, fmt.Sprintf("unknown process %d", pid))
	}

	cv, ok := fields["computer"]
	if !ok {
		return m, nil
	}
	if _, isNull := cv.GetKind().(*structpb.Value_NullValue); isNull {
		return m, nil
	}
	cid, err := integer(cv)
	if err != nil {
		return cloudbalance.Move{}, status.Error(codes.InvalidArgument, fmt.Sprintf("computer: %v", err))
	}
	m.Computer = p.ComputerIndex(cid)
	if m.Computer < 0 {
		return cloudbalance.Move{}, status.Error(codes.InvalidArgument, fmt.Sprintf("unknown computer %d", cid))
	}
	return m, nil
}

func integer(v *structpb.Value) (int64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("expected a number")
	}
	if n.NumberValue != float64(int64(n.NumberValue)) {
		return 0, fmt.Errorf("expected an integer, got %v", n.NumberValue)
	}
	return int64(n.NumberValue), nil
}

func (s *ScoreService) report() (*structpb.Struct, error) {
	n := s.session.Network()
	sc, err := n.Score()
	if err != nil {
		return nil, networkError(err)
	}
	out := map[string]any{
		"score":    sc.String(),
		"feasible": sc.IsFeasible(),
		"policy":   n.Policy().String(),
	}
	if n.Policy() != network.MatchDisabled {
		totals, err := n.ConstraintMatchTotals()
		if err != nil {
			return nil, networkError(err)
		}
		out["constraints"] = constraintList(totals)
	}
	return structpb.NewStruct(out)
}

func constraintList(totals []network.ConstraintMatchTotal) []any {
	list := make([]any, 0, len(totals))
	for _, t := range totals {
		list = append(list, map[string]any{
			"package": t.Constraint.Package,
			"name":    t.Constraint.Name,
			"score":   t.Score.String(),
			"count":   t.Count,
		})
	}
	return list
}

func networkError(err error) error {
	if network.IsCorruption(err) {
		return status.Error(codes.Internal, err.Error())
	}
	if errors.Is(err, types.ErrMatchesDisabled) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Unknown, err.Error())
}

// ScoreServiceServer is the server API of the score service.
type ScoreServiceServer interface {
	GetScore(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Assign(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ ScoreServiceServer = (*ScoreService)(nil)

// RegisterScoreServiceServer registers srv on s.
func RegisterScoreServiceServer(s grpc.ServiceRegistrar, srv ScoreServiceServer) {
	s.RegisterService(&scoreServiceDesc, srv)
}

var scoreServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScoreServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetScore", Handler: getScoreHandler},
		{MethodName: "Assign", Handler: structHandler("Assign", ScoreServiceServer.Assign)},
		{MethodName: "Evaluate", Handler: structHandler("Evaluate", ScoreServiceServer.Evaluate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scorekeeper/v1/score.proto",
}

func getScoreHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScoreServiceServer).GetScore(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetScore"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ScoreServiceServer).GetScore(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func structHandler(method string, call func(ScoreServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ScoreServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ScoreServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ScoreServiceClient calls the score service over conn.
type ScoreServiceClient struct {
	conn grpc.ClientConnInterface
}

// NewScoreServiceClient returns a client using conn.
func NewScoreServiceClient(conn grpc.ClientConnInterface) *ScoreServiceClient {
	return &ScoreServiceClient{conn: conn}
}

// GetScore calls ScoreService/GetScore.
func (c *ScoreServiceClient) GetScore(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/GetScore", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Assign calls ScoreService/Assign. computer nil unassigns.
func (c *ScoreServiceClient) Assign(ctx context.Context, process int64, computer *int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "Assign", process, computer, opts...)
}

// Evaluate calls ScoreService/Evaluate. computer nil unassigns.
func (c *ScoreServiceClient) Evaluate(ctx context.Context, process int64, computer *int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "Evaluate", process, computer, opts...)
}

func (c *ScoreServiceClient) call(ctx context.Context, method string, process int64, computer *int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	fields := map[string]any{"process": process}
	if computer != nil {
		fields["computer"] = *computer
	} else {
		fields["computer"] = nil
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ScoreOf parses the "score" field of a response under def.
func ScoreOf(def *score.Definition, resp *structpb.Struct) (score.Score, error) {
	return def.Parse(resp.GetFields()["score"].GetStringValue())
}
