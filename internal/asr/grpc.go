package asr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/lectern/internal/audio"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the remote recognizer's gRPC service.
	ServiceName = "lectern.asr.v1.Recognizer"
	// RecognizeMethod is the full unary method path.
	RecognizeMethod = "/" + ServiceName + "/Recognize"

	metaPrompt   = "lectern-prompt-bin"
	metaModel    = "lectern-model"
	metaLanguage = "lectern-language"
	metaOffsetMS = "lectern-offset-ms"
)

// GRPCConfig configures a remote recognizer connection.
type GRPCConfig struct {
	Name        string
	Address     string
	Model       string
	Language    string
	Timeout     time.Duration
	DialTimeout time.Duration
}

// GRPCRecognizer calls a remote lectern.asr.v1.Recognizer. Requests carry
// the segment as a WAV BytesValue; prompt and model travel as metadata.
type GRPCRecognizer struct {
	cfg  GRPCConfig
	conn *grpc.ClientConn
}

// DialGRPC connects to cfg.Address and waits for readiness.
func DialGRPC(ctx context.Context, cfg GRPCConfig) (*GRPCRecognizer, error) {
	conn, err := Dial(ctx, cfg.Address, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	return &GRPCRecognizer{cfg: cfg, conn: conn}, nil
}

// Dial opens an insecure client connection and blocks until it is ready.
func Dial(ctx context.Context, address string, timeout time.Duration) (*grpc.ClientConn, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("asr grpc address is empty")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial asr grpc %q: %w", address, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for asr grpc readiness: %w", err)
	}
	return conn, nil
}

// Name returns the pass label.
func (r *GRPCRecognizer) Name() string { return r.cfg.Name }

// Close releases the connection.
func (r *GRPCRecognizer) Close() error { return r.conn.Close() }

// Recognize sends one segment to the remote recognizer.
func (r *GRPCRecognizer) Recognize(ctx context.Context, req Request) (string, error) {
	if len(req.PCM) == 0 {
		return "", ErrEmptyTranscript
	}
	wav, err := audio.WAVBytes(req.PCM, req.SampleRate)
	if err != nil {
		return "", err
	}

	md := metadata.Pairs()
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		md.Set(metaPrompt, prompt)
	}
	if model := strings.TrimSpace(r.cfg.Model); model != "" {
		md.Set(metaModel, model)
	}
	if lang := strings.TrimSpace(r.cfg.Language); lang != "" {
		md.Set(metaLanguage, lang)
	}
	if req.Offset > 0 {
		md.Set(metaOffsetMS, strconv.FormatInt(req.Offset.Milliseconds(), 10))
	}

	callCtx, cancel := withTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	callCtx = metadata.NewOutgoingContext(callCtx, md)

	var out wrapperspb.StringValue
	if err := r.conn.Invoke(callCtx, RecognizeMethod, wrapperspb.Bytes(wav), &out); err != nil {
		return "", fmt.Errorf("%s recognize: %w", r.cfg.Name, err)
	}

	text := cleanText(out.GetValue())
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// CheckHealth queries the standard gRPC health service on address.
func CheckHealth(ctx context.Context, address string, timeout time.Duration) (string, error) {
	conn, err := Dial(ctx, address, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return "", fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus().String(), nil
}

// waitForReady blocks until gRPC connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
