package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwg/restage/internal/config"
	"github.com/zwg/restage/internal/core/domain"
)

// fakeContainers is an in-memory container runtime keyed by instance name.
// It records every call so tests can assert ordering and gating.
type fakeContainers struct {
	instances map[string]*domain.Instance
	calls     []string
	lastSpec  domain.InstanceSpec
	nextID    int

	findErr  error
	stopErr  error
	startErr error
}

func newFakeContainers() *fakeContainers {
	return &fakeContainers{instances: make(map[string]*domain.Instance)}
}

func (f *fakeContainers) FindInstance(ctx context.Context, name string) (*domain.Instance, error) {
	f.calls = append(f.calls, "find:"+name)
	if f.findErr != nil {
		return nil, f.findErr
	}
	inst, ok := f.instances[name]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

func (f *fakeContainers) StopInstance(ctx context.Context, id string) error {
	f.calls = append(f.calls, "stop:"+id)
	if f.stopErr != nil {
		return f.stopErr
	}
	for _, inst := range f.instances {
		if inst.ID == id {
			inst.State = "exited"
			return nil
		}
	}
	return fmt.Errorf("no such container: %s", id)
}

func (f *fakeContainers) RemoveInstance(ctx context.Context, id string) error {
	f.calls = append(f.calls, "remove:"+id)
	for name, inst := range f.instances {
		if inst.ID == id {
			delete(f.instances, name)
			return nil
		}
	}
	return fmt.Errorf("no such container: %s", id)
}

func (f *fakeContainers) StartInstance(ctx context.Context, spec domain.InstanceSpec) (string, error) {
	f.calls = append(f.calls, "start:"+spec.Name)
	if f.startErr != nil {
		return "", f.startErr
	}
	if _, exists := f.instances[spec.Name]; exists {
		return "", fmt.Errorf("container name %q already in use", spec.Name)
	}
	f.nextID++
	id := fmt.Sprintf("cid-%d", f.nextID)
	f.instances[spec.Name] = &domain.Instance{
		ID:    id,
		Name:  spec.Name,
		Image: spec.Image,
		State: domain.StateRunning,
	}
	f.lastSpec = spec
	return id, nil
}

type fakeBuilder struct {
	builds int
	tags   []string
	err    error
}

func (f *fakeBuilder) BuildImage(ctx context.Context, contextDir string, tag string) (string, error) {
	f.builds++
	f.tags = append(f.tags, tag)
	if f.err != nil {
		return "", f.err
	}
	return tag, nil
}

type fakeSource struct {
	syncs int
	err   error
}

func (f *fakeSource) Sync(ctx context.Context, dir string) error {
	f.syncs++
	return f.err
}

type fixture struct {
	dir        string
	containers *fakeContainers
	builder    *fakeBuilder
	source     *fakeSource
	orch       *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	f := &fixture{
		dir:        dir,
		containers: newFakeContainers(),
		builder:    &fakeBuilder{},
		source:     &fakeSource{},
	}
	f.orch = New(f.containers, f.builder, f.source, Options{
		WorkDir:                 dir,
		EnvFile:                 filepath.Join(dir, ".env"),
		CredentialFile:          filepath.Join(dir, "baidu_token.json"),
		ContainerCredentialPath: "/app/baidu_token.json",
		Image:                   "pdf-distributor:latest",
		InstanceName:            "pdf-distributor",
		Port:                    10031,
	})
	return f
}

func (f *fixture) writeEnvFile(t *testing.T) {
	t.Helper()
	err := os.WriteFile(filepath.Join(f.dir, ".env"), []byte("SYS_PASSWORD=secret\nBAIDU_AK=ak\n"), 0o644)
	require.NoError(t, err)
}

func (f *fixture) credentialPath() string {
	return filepath.Join(f.dir, "baidu_token.json")
}

func TestRedeployMissingEnvFileAbortsBeforeAnyAction(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Redeploy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrEnvFileMissing)

	assert.Zero(t, f.builder.builds, "no build may happen without an environment file")
	assert.Zero(t, f.source.syncs)
	assert.Empty(t, f.containers.calls, "no teardown or start may happen without an environment file")

	_, statErr := os.Stat(f.credentialPath())
	assert.True(t, os.IsNotExist(statErr), "credential file must not be created on a fatal precondition")
}

func TestRedeployCreatesPlaceholderCredentialFile(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)

	report, err := f.orch.Redeploy(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(f.credentialPath())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	assert.Equal(t, "http://localhost:10031", report.Address)
}

func TestRedeployPreservesExistingCredentialFile(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)

	token := []byte(`{"access_token":"abc123","expires_at":1700000000}`)
	require.NoError(t, os.WriteFile(f.credentialPath(), token, 0o644))

	_, err := f.orch.Redeploy(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(f.credentialPath())
	require.NoError(t, err)
	assert.Equal(t, token, data, "existing credential file must stay byte-identical")
}

func TestRedeployFirstRun(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)

	report, err := f.orch.Redeploy(context.Background())
	require.NoError(t, err)

	require.Len(t, f.containers.instances, 1)
	inst := f.containers.instances["pdf-distributor"]
	require.NotNil(t, inst)
	assert.True(t, inst.Running())
	assert.Equal(t, "pdf-distributor:latest", inst.Image)

	assert.Equal(t, 1, f.builder.builds)
	assert.Equal(t, []string{"pdf-distributor:latest"}, f.builder.tags)

	spec := f.containers.lastSpec
	assert.Equal(t, 10031, spec.Port)
	assert.Contains(t, spec.Env, "SYS_PASSWORD=secret")
	assert.Contains(t, spec.Env, "BAIDU_AK=ak")
	require.Len(t, spec.Binds, 1)
	assert.Equal(t, f.credentialPath(), spec.Binds[0].HostPath)
	assert.Equal(t, "/app/baidu_token.json", spec.Binds[0].ContainerPath)
	assert.False(t, spec.Binds[0].ReadOnly, "token refresh needs a writable mount")

	assert.Equal(t, "http://localhost:10031", report.Address)
}

func TestRedeployReplacesRunningInstance(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)

	f.containers.instances["pdf-distributor"] = &domain.Instance{
		ID:    "old-1",
		Name:  "pdf-distributor",
		Image: "pdf-distributor:latest",
		State: domain.StateRunning,
	}

	_, err := f.orch.Redeploy(context.Background())
	require.NoError(t, err)

	require.Len(t, f.containers.instances, 1)
	inst := f.containers.instances["pdf-distributor"]
	assert.NotEqual(t, "old-1", inst.ID, "a new generation must replace the old one")
	assert.True(t, inst.Running())

	// Stop strictly precedes remove, remove strictly precedes start.
	assert.Equal(t, []string{
		"find:pdf-distributor",
		"stop:old-1",
		"find:pdf-distributor",
		"remove:old-1",
		"start:pdf-distributor",
	}, f.containers.calls)
}

func TestRedeployRemovesStoppedInstanceWithoutStopping(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)

	f.containers.instances["pdf-distributor"] = &domain.Instance{
		ID:    "old-1",
		Name:  "pdf-distributor",
		State: "exited",
	}

	_, err := f.orch.Redeploy(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, f.containers.calls, "stop:old-1", "a stopped instance is removed, not stopped again")
	assert.Contains(t, f.containers.calls, "remove:old-1")
	require.Len(t, f.containers.instances, 1)
	assert.True(t, f.containers.instances["pdf-distributor"].Running())
}

func TestRedeployIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)

	for i := 0; i < 2; i++ {
		_, err := f.orch.Redeploy(context.Background())
		require.NoError(t, err, "run %d", i+1)
		require.Len(t, f.containers.instances, 1, "exactly one instance after run %d", i+1)
		assert.True(t, f.containers.instances["pdf-distributor"].Running())
	}

	assert.Equal(t, 2, f.builder.builds, "the image is rebuilt unconditionally on every run")
}

func TestRedeployContinuesPastAdvisorySyncFailure(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)
	f.source.err = errors.New("remote unreachable")

	report, err := f.orch.Redeploy(context.Background())
	require.NoError(t, err, "a sync failure must not abort the run")

	advisories := report.Advisories()
	require.Len(t, advisories, 1)
	assert.Equal(t, "sync-source", advisories[0].Name)

	assert.Equal(t, 1, f.builder.builds, "the build proceeds against whatever is on disk")
	require.Len(t, f.containers.instances, 1)
}

func TestRedeployBuildFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)
	f.builder.err = errors.New("Dockerfile syntax error")

	f.containers.instances["pdf-distributor"] = &domain.Instance{
		ID:    "old-1",
		Name:  "pdf-distributor",
		State: domain.StateRunning,
	}

	_, err := f.orch.Redeploy(context.Background())
	require.Error(t, err)

	// The previous generation must survive a failed build.
	assert.Empty(t, f.containers.calls, "no teardown before a successful build")
	require.Len(t, f.containers.instances, 1)
	assert.Equal(t, "old-1", f.containers.instances["pdf-distributor"].ID)
}

func TestRedeployStopFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)
	f.containers.instances["pdf-distributor"] = &domain.Instance{
		ID:    "old-1",
		Name:  "pdf-distributor",
		State: domain.StateRunning,
	}
	f.containers.stopErr = errors.New("daemon busy")

	report, err := f.orch.Redeploy(context.Background())
	require.Error(t, err)
	assert.Empty(t, report.Address)
	assert.NotContains(t, f.containers.calls, "start:pdf-distributor")
}

func TestRedeployReportRecordsStepOutcomes(t *testing.T) {
	f := newFixture(t)
	f.writeEnvFile(t)

	report, err := f.orch.Redeploy(context.Background())
	require.NoError(t, err)

	var names []string
	for _, s := range report.Steps {
		names = append(names, s.Name)
		assert.False(t, s.Failed(), "step %s", s.Name)
	}
	assert.Equal(t, []string{
		"check-env-file",
		"ensure-credential-file",
		"sync-source",
		"build-image",
		"teardown-previous",
		"start-instance",
	}, names)
}
