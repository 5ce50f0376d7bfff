package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/recovery"
)

// ErrDockerUnavailable means the engine could not be reached this poll
var ErrDockerUnavailable = errors.New("docker unavailable")

// ContainerLister is the slice of the Docker API the source needs
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// DockerSource polls the local Docker engine and feeds the status service
// with the containers of every watched deployment prefix. Containers are
// matched to a prefix by name: "<prefix>-<name>".
type DockerSource struct {
	lister   ContainerLister
	closer   func() error
	status   *ContainerStatusService
	interval time.Duration
	log      zerolog.Logger

	mu   sync.Mutex
	last map[string]map[string]models.Container

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewDockerSource connects to the engine described by the DOCKER_* environment
func NewDockerSource(status *ContainerStatusService, interval time.Duration) (*DockerSource, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	d := NewDockerSourceWithLister(cli, status, interval)
	d.closer = cli.Close
	return d, nil
}

// NewDockerSourceWithLister wraps an existing lister, used by tests
func NewDockerSourceWithLister(lister ContainerLister, status *ContainerStatusService, interval time.Duration) *DockerSource {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &DockerSource{
		lister:   lister,
		status:   status,
		interval: interval,
		log:      logger.With("component", "docker-source"),
		last:     make(map[string]map[string]models.Container),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start polls until ctx is cancelled or Stop is called
func (d *DockerSource) Start(ctx context.Context) {
	recovery.SafeGoWithCleanup("docker-source", func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		d.log.Info().Dur("interval", d.interval).Msg("🐳 started docker container polling")
		unavailable := false

		for {
			select {
			case <-ticker.C:
				err := d.Poll(ctx)
				switch {
				case err == nil:
					if unavailable {
						d.log.Info().Msg("🐳 docker reachable again")
					}
					unavailable = false
				case errors.Is(err, ErrDockerUnavailable):
					if !unavailable {
						d.log.Warn().Err(err).Msg("docker unreachable, status channel relies on ingestion")
					}
					unavailable = true
				default:
					d.log.Warn().Err(err).Msg("docker poll failed")
				}
			case <-ctx.Done():
				return
			case <-d.stop:
				return
			}
		}
	}, func() {
		close(d.done)
	})
}

// Stop ends polling and closes the docker client
func (d *DockerSource) Stop() error {
	d.stopOnce.Do(func() { close(d.stop) })
	select {
	case <-d.done:
	case <-time.After(d.interval + time.Second):
	}
	if d.closer != nil {
		return d.closer()
	}
	return nil
}

// Poll lists containers once and publishes changes for every watched prefix
func (d *DockerSource) Poll(ctx context.Context) error {
	prefixes := d.status.Prefixes()

	d.mu.Lock()
	defer d.mu.Unlock()

	watched := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		watched[p] = struct{}{}
	}
	for p := range d.last {
		if _, ok := watched[p]; !ok {
			delete(d.last, p)
		}
	}
	if len(prefixes) == 0 {
		return nil
	}

	summaries, err := d.lister.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		if client.IsErrConnectionFailed(err) || errdefs.IsUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrDockerUnavailable, err)
		}
		return fmt.Errorf("list containers: %w", err)
	}

	grouped := groupByPrefix(summaries, prefixes)
	nodeID := d.status.NodeID()

	for _, prefix := range prefixes {
		current := grouped[prefix]
		previous := d.last[prefix]

		var removed []models.ContainerID
		for _, key := range sortedKeys(previous) {
			if _, ok := current[key]; !ok {
				removed = append(removed, previous[key].ID)
			}
		}

		if len(current) > 0 {
			list := make([]models.Container, 0, len(current))
			for _, key := range sortedKeys(current) {
				list = append(list, current[key])
			}
			if _, err := d.status.Publish(nodeID, prefix, list); err != nil {
				return fmt.Errorf("publish %s: %w", prefix, err)
			}
		}
		if len(removed) > 0 {
			if _, err := d.status.Remove(nodeID, prefix, removed); err != nil {
				return fmt.Errorf("remove from %s: %w", prefix, err)
			}
		}

		d.last[prefix] = current
	}
	return nil
}

// groupByPrefix assigns each container to the longest matching watched prefix
func groupByPrefix(summaries []container.Summary, prefixes []string) map[string]map[string]models.Container {
	ordered := append([]string(nil), prefixes...)
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	grouped := make(map[string]map[string]models.Container, len(prefixes))
	for _, s := range summaries {
		if len(s.Names) == 0 {
			continue
		}
		name := strings.TrimPrefix(s.Names[0], "/")
		for _, prefix := range ordered {
			rest, ok := strings.CutPrefix(name, prefix+"-")
			if !ok || rest == "" {
				continue
			}
			c := containerFromSummary(prefix, rest, s)
			if grouped[prefix] == nil {
				grouped[prefix] = make(map[string]models.Container)
			}
			grouped[prefix][c.Key()] = c
			break
		}
	}
	return grouped
}

func containerFromSummary(prefix, name string, s container.Summary) models.Container {
	c := models.Container{
		ID:    models.ContainerID{Prefix: prefix, Name: name},
		Ports: []models.ContainerPort{},
	}
	c.ImageName, c.ImageTag = splitImage(s.Image)

	if s.Created > 0 {
		created := time.Unix(s.Created, 0).UTC()
		c.CreatedAt = &created
	}
	if state := string(s.State); state != "" {
		c.State = models.StatePtr(models.ContainerState(state))
		if state != string(models.ContainerStateRunning) && s.Status != "" {
			reason := s.Status
			c.Reason = &reason
		}
	}

	seen := make(map[models.ContainerPort]struct{}, len(s.Ports))
	for _, p := range s.Ports {
		if p.PublicPort == 0 {
			continue
		}
		port := models.ContainerPort{Internal: int(p.PrivatePort), External: int(p.PublicPort)}
		// IPv4 and IPv6 bindings of the same mapping are reported separately
		if _, dup := seen[port]; dup {
			continue
		}
		seen[port] = struct{}{}
		c.Ports = append(c.Ports, port)
	}
	return c
}

// splitImage turns "registry:5000/shop/web:1.2@sha256:..." into ("registry:5000/shop/web", "1.2")
func splitImage(image string) (name, tag string) {
	image, _, _ = strings.Cut(image, "@")
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon > slash {
		return image[:colon], image[colon+1:]
	}
	return image, "latest"
}
