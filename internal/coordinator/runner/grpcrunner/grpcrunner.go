// Package grpcrunner implements runner.JobManager against an external
// runner-specific backend reached over grpc. The platform's protobuf service
// definitions live with that backend, so this adapter carries its own
// minimal JSON codec rather than generated stubs: messages are plain
// structs, and grpc.ClientConn.Invoke is called directly against method
// paths, the way a thin internal client is built before its .proto contract
// stabilizes.
package grpcrunner

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/internal/coordinator/runner"
	"github.com/egabancho/feast/pkg/config"
	ferrors "github.com/egabancho/feast/pkg/errors"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jobWire is the wire representation of a domain.Job exchanged with the
// runner backend.
type jobWire struct {
	ID           string            `json:"id"`
	ExtID        string            `json:"extId"`
	Runner       string            `json:"runner"`
	SourceType   string            `json:"sourceType"`
	SourceConfig map[string]string `json:"sourceConfig"`
	StoreName    string            `json:"storeName"`
	Status       string            `json:"status"`
	FeatureSets  []string          `json:"featureSets"`
}

func toWire(job domain.Job) jobWire {
	return jobWire{
		ID:           job.ID,
		ExtID:        job.ExtID,
		Runner:       string(job.Runner),
		SourceType:   string(job.Source.Type),
		SourceConfig: job.Source.Config,
		StoreName:    job.Store.Name,
		Status:       string(job.Status),
		FeatureSets:  job.FeatureSet,
	}
}

func (w jobWire) merge(into domain.Job) domain.Job {
	into.ExtID = w.ExtID
	into.Status = domain.JobStatus(w.Status)
	return into
}

type statusWire struct {
	Status string `json:"status"`
}

// Runner implements runner.JobManager over a grpc connection to an external
// runner backend.
type Runner struct {
	runnerType domain.Runner
	conn       *grpc.ClientConn
}

var _ runner.JobManager = (*Runner)(nil)

// Dial connects to a runner backend at cfg.Endpoint, using mTLS when
// security material is configured and a plaintext connection otherwise (for
// local/dev runner stand-ins).
func Dial(runnerType domain.Runner, cfg config.RunnerConfig) (*Runner, error) {
	var dialCreds grpc.DialOption
	if tlsCfg, err := cfg.Security.GetClientTLSConfig(); err == nil {
		dialCreds = grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg))
	} else {
		dialCreds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	conn, err := grpc.NewClient(cfg.Endpoint,
		dialCreds,
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, ferrors.WrapRunnerError(string(runnerType), "", "dial", err)
	}

	return &Runner{runnerType: runnerType, conn: conn}, nil
}

// Close releases the underlying connection.
func (r *Runner) Close() error {
	return r.conn.Close()
}

func (r *Runner) RunnerType() domain.Runner {
	return r.runnerType
}

func (r *Runner) StartJob(ctx context.Context, job domain.Job) (domain.Job, error) {
	req := toWire(job)
	var resp jobWire
	if err := r.conn.Invoke(ctx, "/coordinator.Runner/StartJob", &req, &resp); err != nil {
		job.Status = domain.JobError
		return job, ferrors.WrapRunnerError(string(r.runnerType), job.ID, "startJob", classify(err))
	}
	return resp.merge(job), nil
}

func (r *Runner) AbortJob(ctx context.Context, job domain.Job) (domain.Job, error) {
	req := toWire(job)
	var resp jobWire
	if err := r.conn.Invoke(ctx, "/coordinator.Runner/AbortJob", &req, &resp); err != nil {
		return job, ferrors.WrapRunnerError(string(r.runnerType), job.ID, "abortJob", classify(err))
	}
	return resp.merge(job), nil
}

func (r *Runner) GetJobStatus(ctx context.Context, job domain.Job) (domain.JobStatus, error) {
	req := toWire(job)
	var resp statusWire
	if err := r.conn.Invoke(ctx, "/coordinator.Runner/GetJobStatus", &req, &resp); err != nil {
		return "", ferrors.WrapRunnerError(string(r.runnerType), job.ID, "getJobStatus", classify(err))
	}
	return domain.JobStatus(resp.Status), nil
}

// classify turns a cancellation or deadline-exceeded grpc status into the
// same shape as any other runner-call failure: a cancelled start is a failed
// start, and the next pass replaces the job either way.
func classify(err error) error {
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.DeadlineExceeded, codes.Canceled:
			return fmt.Errorf("runner call cancelled or timed out: %w", err)
		}
	}
	return err
}
