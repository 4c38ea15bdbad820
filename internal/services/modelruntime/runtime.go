package modelruntime

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/pkg/tcpclient"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Predictor runs a forward pass over one preprocessed image tensor and
// returns the class probability vector.
type Predictor interface {
	Predict(ctx context.Context, tensor []float32, height, width int) ([]float32, error)
	Close() error
}

const (
	opLoad    = "load"
	opPredict = "predict"
	opUnload  = "unload"
	opPing    = "ping"
)

type request struct {
	Op        string    `msgpack:"op"`
	ModelPath string    `msgpack:"model_path,omitempty"`
	Shape     []int     `msgpack:"shape,omitempty"`
	Data      []float32 `msgpack:"data,omitempty"`
}

type response struct {
	OK    bool      `msgpack:"ok"`
	Probs []float32 `msgpack:"probs,omitempty"`
	Error string    `msgpack:"error,omitempty"`
}

// Runtime talks to the inference sidecar over pooled TCP connections with
// msgpack-encoded frames. The sidecar owns the numeric model; this side
// owns identity, caching and orchestration.
type Runtime struct {
	client *tcpclient.TCPClient
	logger *zap.Logger
}

func NewRuntime(cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	rc := cfg.Runtime
	if rc == nil {
		rc = &config.RuntimeConfig{TcpPort: config.DefaultRuntimePort, TcpTimeout: config.DefaultRuntimeTimeout}
	}

	address := net.JoinHostPort(rc.Host, strconv.Itoa(rc.TcpPort))
	timeout := time.Duration(rc.TcpTimeout) * time.Second

	poolSize := config.DefaultWorkerCount
	if cfg.Worker != nil && cfg.Worker.Count > 0 {
		poolSize = cfg.Worker.Count
	}

	client, err := tcpclient.NewTCPClient(address, timeout, poolSize, tcpclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to model runtime at %s: %w", address, err)
	}

	return &Runtime{client: client, logger: logger}, nil
}

func (r *Runtime) call(ctx context.Context, req *request) (*response, error) {
	payload, err := msgpack.Marshal(req)
	if err != nil {
		return nil, err
	}

	data, err := r.client.Call(ctx, payload)
	if err != nil {
		return nil, err
	}

	var resp response
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode runtime response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("runtime error: %s", resp.Error)
	}

	return &resp, nil
}

// LoadPredictor makes the sidecar materialize the snapshot at modelPath and
// returns a handle bound to it. A failed load leaves nothing to clean up on
// either side.
func (r *Runtime) LoadPredictor(ctx context.Context, modelPath string) (Predictor, error) {
	if _, err := r.call(ctx, &request{Op: opLoad, ModelPath: modelPath}); err != nil {
		return nil, err
	}

	return &tcpPredictor{runtime: r, modelPath: modelPath}, nil
}

func (r *Runtime) Ping(ctx context.Context) error {
	_, err := r.call(ctx, &request{Op: opPing})
	return err
}

func (r *Runtime) Close() error {
	return r.client.Close()
}

type tcpPredictor struct {
	runtime   *Runtime
	modelPath string
}

func (p *tcpPredictor) Predict(ctx context.Context, tensor []float32, height, width int) ([]float32, error) {
	resp, err := p.runtime.call(ctx, &request{
		Op:        opPredict,
		ModelPath: p.modelPath,
		Shape:     []int{1, height, width, 3},
		Data:      tensor,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Probs) == 0 {
		return nil, fmt.Errorf("runtime returned an empty probability vector")
	}

	return resp.Probs, nil
}

func (p *tcpPredictor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := p.runtime.call(ctx, &request{Op: opUnload, ModelPath: p.modelPath})
	return err
}
