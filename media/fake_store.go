package media

import (
	"context"
	"io"
	"io/ioutil"
	"sync"
)

// FakeFileStore keeps objects in memory; tests and local development use it
// in place of S3.
type FakeFileStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewFakeFileStore() *FakeFileStore {
	return &FakeFileStore{objects: map[string][]byte{}}
}

func (f *FakeFileStore) Store(ctx context.Context, key string, body io.Reader) (string, error) {
	data, err := ioutil.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return f.GetUrlFromKey(key), nil
}

func (f *FakeFileStore) GetUrlFromKey(key string) string {
	return "fake://" + key
}

func (f *FakeFileStore) Get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func (f *FakeFileStore) CleanUp() {
	f.mu.Lock()
	f.objects = map[string][]byte{}
	f.mu.Unlock()
}
