// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package launcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"grimm.is/stitcher/internal/rspec"
	"grimm.is/stitcher/internal/stitch/amclient"
	"grimm.is/stitcher/internal/stitch/cred"
	"grimm.is/stitcher/internal/stitch/model"
	"grimm.is/stitcher/internal/stitch/reservation"
	"grimm.is/stitcher/internal/vlan"
)

// recordingClient reports success for every aggregate, tracking submission
// order so tests can assert dependency ordering was honored.
type recordingClient struct {
	mu    sync.Mutex
	order []string
	delay map[string]time.Duration
}

func (c *recordingClient) GetVersion(ctx context.Context, url string) (amclient.VersionInfo, error) {
	return amclient.VersionInfo{}, nil
}

func (c *recordingClient) Reserve(ctx context.Context, url, sliceCred string, req []byte) ([]byte, *amclient.ReserveError, error) {
	if d, ok := c.delay[url]; ok {
		time.Sleep(d)
	}
	c.mu.Lock()
	c.order = append(c.order, url)
	c.mu.Unlock()
	doc := &rspec.Document{}
	b, err := rspec.Marshal(doc)
	return b, nil, err
}

func (c *recordingClient) Delete(ctx context.Context, url, sliceName string) error { return nil }

func newAggregate(urn, url string) *model.Aggregate {
	return &model.Aggregate{
		URN:       urn,
		URL:       url,
		DependsOn: map[string]*model.Aggregate{},
	}
}

func buildEngine(t *testing.T, client amclient.Client) *reservation.Engine {
	t.Helper()
	build := func(agg *model.Aggregate) (*rspec.Document, error) {
		return &rspec.Document{}, nil
	}
	e := reservation.NewEngine(client, cred.Static{Credential: "cred"}, build, nil, nil)
	return e
}

func TestRunSubmitsInDependencyOrder(t *testing.T) {
	a := newAggregate("urn:a", "https://a.example.org/am")
	b := newAggregate("urn:b", "https://b.example.org/am")
	b.DependsOn["urn:a"] = a

	reg := model.NewRegistry()
	reg.AddAggregate(a)
	reg.AddAggregate(b)

	client := &recordingClient{}
	l := NewLauncher(buildEngine(t, client), nil, 0)

	res := l.Run(context.Background(), "urn:slice", reg)
	if !res.Success {
		t.Fatalf("expected success, got err=%v escalate=%v", res.Err, res.Escalate)
	}
	if len(client.order) != 2 || client.order[0] != a.URL || client.order[1] != b.URL {
		t.Fatalf("expected a before b, got %v", client.order)
	}
	if res.LastCompleted != b {
		t.Fatalf("expected last completed to be b, got %v", res.LastCompleted)
	}
}

func TestRunSubmitsIndependentAggregatesConcurrently(t *testing.T) {
	a := newAggregate("urn:a", "https://a.example.org/am")
	b := newAggregate("urn:b", "https://b.example.org/am")

	reg := model.NewRegistry()
	reg.AddAggregate(a)
	reg.AddAggregate(b)

	client := &recordingClient{delay: map[string]time.Duration{
		a.URL: 30 * time.Millisecond,
		b.URL: 30 * time.Millisecond,
	}}
	l := NewLauncher(buildEngine(t, client), nil, 0)

	start := time.Now()
	res := l.Run(context.Background(), "urn:slice", reg)
	elapsed := time.Since(start)

	if !res.Success {
		t.Fatalf("expected success, got err=%v", res.Err)
	}
	if elapsed > 55*time.Millisecond {
		t.Fatalf("expected concurrent submission to take ~30ms, took %s", elapsed)
	}
}

type vlanExhaustedClient struct{}

func (c *vlanExhaustedClient) GetVersion(ctx context.Context, url string) (amclient.VersionInfo, error) {
	return amclient.VersionInfo{}, nil
}

func (c *vlanExhaustedClient) Reserve(ctx context.Context, url, sliceCred string, req []byte) ([]byte, *amclient.ReserveError, error) {
	return nil, &amclient.ReserveError{Kind: amclient.ErrorKindVLANUnavailable, OffendingHops: []string{"urn:a:hop1"}, OffendingTags: []int{100}}, nil
}

func (c *vlanExhaustedClient) Delete(ctx context.Context, url, sliceName string) error { return nil }

func TestRunHaltsAndReportsEscalation(t *testing.T) {
	requested, _ := vlan.New(100)
	path := &model.Path{LinkID: "link1"}
	hop := &model.Hop{URN: "urn:a:hop1", Path: path, RequestedRange: requested, SuggestedTag: vlan.Any()}
	path.Hops = append(path.Hops, hop)

	a := newAggregate("urn:a", "https://a.example.org/am")
	a.Hops = []*model.Hop{hop}
	hop.Aggregate = a

	reg := model.NewRegistry()
	reg.AddAggregate(a)

	l := NewLauncher(buildEngine(t, &vlanExhaustedClient{}), nil, 0)
	res := l.Run(context.Background(), "urn:slice", reg)
	if !res.Escalate {
		t.Fatalf("expected escalation, got success=%v err=%v", res.Success, res.Err)
	}
}

type fatalClient struct{}

func (c *fatalClient) GetVersion(ctx context.Context, url string) (amclient.VersionInfo, error) {
	return amclient.VersionInfo{}, nil
}

func (c *fatalClient) Reserve(ctx context.Context, url, sliceCred string, req []byte) ([]byte, *amclient.ReserveError, error) {
	return nil, &amclient.ReserveError{Kind: amclient.ErrorKindPermission, Message: "denied"}, nil
}

func (c *fatalClient) Delete(ctx context.Context, url, sliceName string) error { return nil }

func TestRunHaltsOnFatal(t *testing.T) {
	a := newAggregate("urn:a", "https://a.example.org/am")
	b := newAggregate("urn:b", "https://b.example.org/am")
	b.DependsOn["urn:a"] = a

	reg := model.NewRegistry()
	reg.AddAggregate(a)
	reg.AddAggregate(b)

	l := NewLauncher(buildEngine(t, &fatalClient{}), nil, 0)
	res := l.Run(context.Background(), "urn:slice", reg)
	if res.Success {
		t.Fatal("expected failure, not success")
	}
	if res.Err == nil {
		t.Fatal("expected a fatal error")
	}
	// b must never have been submitted since its dependency a never reserved.
	if b.State == model.StateSubmitting || b.State == model.StateReserved {
		t.Fatalf("expected b untouched, got state %v", b.State)
	}
}
