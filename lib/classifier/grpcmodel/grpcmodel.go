// Package grpcmodel classifies digits with a model server reachable over
// gRPC.
//
// The server exposes a unary Predict method on a configurable service that
// takes and returns google.protobuf.Struct messages shaped like the HTTP
// model server's JSON: {"model", "version", "inputs": [[784 floats]]} in and
// {"predictions": ...} out. It must also serve grpc.health.v1.
package grpcmodel

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/inkwell-labs/scribble"
	"github.com/inkwell-labs/scribble/lib/classifier"
	"github.com/inkwell-labs/scribble/lib/imaging"
	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/timeout"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthv1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultService is the service name Predict is called on when the
// configuration does not name one.
const DefaultService = "scribble.classifier.v1.ClassifierService"

var clientMetrics = sync.OnceValue(func() *grpcprom.ClientMetrics {
	clMetrics := grpcprom.NewClientMetrics(
		grpcprom.WithClientHandlingTimeHistogram(
			grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9, 20, 30}),
		),
	)
	prometheus.DefaultRegisterer.Register(clMetrics)
	return clMetrics
})

type Client struct {
	conn    *grpc.ClientConn
	health  healthv1.HealthClient
	method  string
	model   string
	version string
}

// New dials the model server and checks that it reports SERVING.
func New(ctx context.Context, cfg Config, extra ...grpc.DialOption) (*Client, error) {
	clMetrics := clientMetrics()

	unary := []grpc.UnaryClientInterceptor{
		clMetrics.UnaryClientInterceptor(),
	}
	if cfg.Timeout > 0 {
		unary = append([]grpc.UnaryClientInterceptor{timeout.UnaryClientInterceptor(cfg.Timeout.Duration())}, unary...)
	}
	if cfg.Token != "" {
		unary = append(unary, authUnaryClientInterceptor(cfg.Token))
	}

	do := []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(unary...),
		grpc.WithUserAgent(fmt.Sprint("inkwell-scribble/", scribble.Version)),
	}

	if cfg.Plaintext {
		do = append(do, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		do = append(do, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	}

	do = append(do, extra...)

	conn, err := grpc.NewClient(cfg.Target, do...)
	if err != nil {
		return nil, fmt.Errorf("can't dial model server at %s: %w", cfg.Target, err)
	}

	hc := healthv1.NewHealthClient(conn)

	resp, err := hc.Check(ctx, &healthv1.HealthCheckRequest{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("can't verify model server health at %s: %w", cfg.Target, err)
	}

	if resp.Status != healthv1.HealthCheckResponse_SERVING {
		conn.Close()
		return nil, fmt.Errorf("model server is not healthy, wanted %s but got %s", healthv1.HealthCheckResponse_SERVING, resp.Status)
	}

	service := cfg.Service
	if service == "" {
		service = DefaultService
	}

	return &Client{
		conn:    conn,
		health:  hc,
		method:  "/" + service + "/Predict",
		model:   cfg.Model,
		version: cfg.Version,
	}, nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) Classify(ctx context.Context, t *imaging.Tensor) (int, error) {
	flat := t.Flat()
	pixels := make([]any, len(flat))
	for i, v := range flat {
		pixels[i] = float64(v)
	}

	req, err := structpb.NewStruct(map[string]any{
		"model":   c.model,
		"version": c.version,
		"inputs":  []any{pixels},
	})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	var resp structpb.Struct
	if err := c.conn.Invoke(ctx, c.method, req, &resp); err != nil {
		return 0, mapStatus(err)
	}

	predictions, ok := resp.GetFields()["predictions"]
	if !ok {
		return 0, fmt.Errorf("%w: response has no predictions", classifier.ErrBackendProtocol)
	}

	raw, err := json.Marshal(predictions.AsInterface())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", classifier.ErrBackendProtocol, err)
	}

	return classifier.DigitFromPredictions(raw)
}

// mapStatus sorts gRPC failures into the two classifier failure kinds.
// Codes that mean the two sides disagree about the contract are protocol
// errors, everything else is the server being unavailable.
func mapStatus(err error) error {
	st, _ := status.FromError(err)

	switch st.Code() {
	case codes.InvalidArgument, codes.Unimplemented, codes.DataLoss, codes.OutOfRange:
		return fmt.Errorf("%w: %s: %s", classifier.ErrBackendProtocol, st.Code(), st.Message())
	default:
		return fmt.Errorf("%w: %s: %s", classifier.ErrBackendUnavailable, st.Code(), st.Message())
	}
}
