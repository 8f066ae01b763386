// Package orchestrator implements the redeploy procedure: rebuild the image
// from the local checkout, tear down the previous instance if any, and start
// a new generation in the reserved instance slot — never touching an existing
// credential file.
package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/zwg/restage/internal/config"
	"github.com/zwg/restage/internal/core/domain"
	"github.com/zwg/restage/internal/core/ports"
	"github.com/zwg/restage/pkg/logger"
)

// placeholderCredentials is written when no credential file exists yet. A
// regular file must be present before the bind mount, otherwise the container
// runtime materializes a directory at the mount point.
const placeholderCredentials = "{}"

// Options carries the resolved deployment parameters through the procedure.
type Options struct {
	// WorkDir is the source checkout used as build context.
	WorkDir string
	// EnvFile is the resolved path of the environment file (fatal if absent).
	EnvFile string
	// CredentialFile is the resolved host path of the persisted token file.
	CredentialFile string
	// ContainerCredentialPath is where the credential file is mounted inside
	// the container.
	ContainerCredentialPath string
	Image                   string
	// InstanceName is the reserved slot: at most one container with this
	// name exists at any time.
	InstanceName string
	Port         int
}

// Orchestrator drives one redeploy run over the injected services.
type Orchestrator struct {
	containers ports.ContainerService
	builder    ports.BuilderService
	source     ports.SourceService
	opts       Options
}

// New creates an orchestrator for the given services and deployment options.
func New(containers ports.ContainerService, builder ports.BuilderService, source ports.SourceService, opts Options) *Orchestrator {
	return &Orchestrator{
		containers: containers,
		builder:    builder,
		source:     source,
		opts:       opts,
	}
}

type step struct {
	name string
	kind domain.StepKind
	run  func(ctx context.Context) (string, error)
}

// Redeploy runs the full procedure. It stops at the first fatal failure,
// records advisory failures in the report and continues past them. The
// returned report is always non-nil and covers the steps that ran.
func (o *Orchestrator) Redeploy(ctx context.Context) (*domain.Report, error) {
	report := &domain.Report{}

	// Loaded by the environment-file step, consumed by the start step.
	var env []string

	steps := []step{
		{
			name: "check-env-file",
			kind: domain.StepFatal,
			run: func(ctx context.Context) (string, error) {
				loaded, err := config.ReadEnvFile(o.opts.EnvFile)
				if err != nil {
					return "", err
				}
				env = loaded
				return fmt.Sprintf("%d variables loaded", len(loaded)), nil
			},
		},
		{
			name: "ensure-credential-file",
			kind: domain.StepSelfHealing,
			run:  o.ensureCredentialFile,
		},
		{
			name: "sync-source",
			kind: domain.StepAdvisory,
			run: func(ctx context.Context) (string, error) {
				return "", o.source.Sync(ctx, o.opts.WorkDir)
			},
		},
		{
			name: "build-image",
			kind: domain.StepFatal,
			run: func(ctx context.Context) (string, error) {
				if _, err := o.builder.BuildImage(ctx, o.opts.WorkDir, o.opts.Image); err != nil {
					return "", err
				}
				return o.opts.Image, nil
			},
		},
		{
			name: "teardown-previous",
			kind: domain.StepFatal,
			run:  o.teardownPrevious,
		},
		{
			name: "start-instance",
			kind: domain.StepFatal,
			run: func(ctx context.Context) (string, error) {
				return o.startInstance(ctx, env)
			},
		},
	}

	for _, st := range steps {
		note, err := st.run(ctx)
		report.Steps = append(report.Steps, domain.StepResult{
			Name: st.name,
			Kind: st.kind,
			Note: note,
			Err:  err,
		})
		if err == nil {
			logger.Debug("step completed", "step", st.name, "note", note)
			continue
		}
		if st.kind == domain.StepAdvisory {
			logger.Warn("advisory step failed, continuing", "step", st.name, "error", err)
			continue
		}
		return report, fmt.Errorf("redeploy step %s: %w", st.name, err)
	}

	report.Address = fmt.Sprintf("http://localhost:%d", o.opts.Port)
	logger.Info("deployment complete", "instance", o.opts.InstanceName, "address", report.Address)
	return report, nil
}

// ensureCredentialFile guarantees a regular file exists at the credential
// path. An existing file is left byte-untouched.
func (o *Orchestrator) ensureCredentialFile(ctx context.Context) (string, error) {
	path := o.opts.CredentialFile

	if _, err := os.Stat(path); err == nil {
		return "existing credential file preserved", nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat credential file %s: %w", path, err)
	}

	logger.Warn("credential file missing, creating placeholder", "path", path)
	if err := os.WriteFile(path, []byte(placeholderCredentials), 0o644); err != nil {
		return "", fmt.Errorf("failed to create credential file %s: %w", path, err)
	}
	return "placeholder credential file created", nil
}

// teardownPrevious stops and removes any container occupying the instance
// slot. The stop and remove gates are checked independently: a stopped
// container still needs removing, and a clean first run needs neither.
func (o *Orchestrator) teardownPrevious(ctx context.Context) (string, error) {
	name := o.opts.InstanceName

	inst, err := o.containers.FindInstance(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to look up instance %s: %w", name, err)
	}
	if inst == nil {
		return "no previous instance", nil
	}

	if inst.Running() {
		logger.Info("stopping previous instance", "instance", name, "id", inst.ID)
		if err := o.containers.StopInstance(ctx, inst.ID); err != nil {
			return "", fmt.Errorf("failed to stop instance %s: %w", name, err)
		}
	}

	inst, err = o.containers.FindInstance(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to look up instance %s after stop: %w", name, err)
	}
	if inst == nil {
		return "previous instance already gone", nil
	}

	logger.Info("removing previous instance", "instance", name, "id", inst.ID)
	if err := o.containers.RemoveInstance(ctx, inst.ID); err != nil {
		return "", fmt.Errorf("failed to remove instance %s: %w", name, err)
	}
	return "previous instance removed", nil
}

func (o *Orchestrator) startInstance(ctx context.Context, env []string) (string, error) {
	spec := domain.InstanceSpec{
		Name:  o.opts.InstanceName,
		Image: o.opts.Image,
		Port:  o.opts.Port,
		Env:   env,
		Binds: []domain.Bind{
			{
				HostPath:      o.opts.CredentialFile,
				ContainerPath: o.opts.ContainerCredentialPath,
				// The application refreshes its token in place, so the mount
				// must stay writable.
				ReadOnly: false,
			},
		},
	}

	id, err := o.containers.StartInstance(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("failed to start instance %s: %w", spec.Name, err)
	}
	return fmt.Sprintf("started as %s", id), nil
}
