// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package amclient

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"grimm.is/stitcher/internal/errors"
)

var filenameUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FakeClient implements Client for fakeModeDir runs: getversion always
// reports a protogeni v2 aggregate (fake mode never contacts a real one to
// negotiate a family), reserve echoes a canned per-aggregate manifest file
// if the fixture supplies one and otherwise passes the request straight
// through, and delete is a no-op that still lets the caller's FSM advance —
// fake mode has nothing running to tear down.
type FakeClient struct {
	Dir string
}

// NewFakeClient returns a FakeClient reading canned manifests from dir.
func NewFakeClient(dir string) *FakeClient {
	return &FakeClient{Dir: dir}
}

func (f *FakeClient) manifestPath(url string) string {
	return filepath.Join(f.Dir, filenameUnsafe.ReplaceAllString(url, "_")+"-manifest.xml")
}

// GetVersion always reports protogeni API v2.
func (f *FakeClient) GetVersion(ctx context.Context, url string) (VersionInfo, error) {
	return VersionInfo{AMType: []string{"protogeni"}, APIVersions: map[string]string{"2": url}}, nil
}

// Reserve returns the fixture manifest named for url, if one exists;
// otherwise it echoes the request unchanged as the manifest.
func (f *FakeClient) Reserve(ctx context.Context, url, sliceCred string, req []byte) ([]byte, *ReserveError, error) {
	data, err := os.ReadFile(f.manifestPath(url))
	if os.IsNotExist(err) {
		return req, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.KindAggregateFatal, "fake mode: reading manifest fixture for %s", url)
	}
	return data, nil, nil
}

// Delete is a no-op; fake mode reserves nothing to actually tear down.
func (f *FakeClient) Delete(ctx context.Context, url, sliceName string) error {
	return nil
}
