// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/wizprobe/internal/browser"
	"github.com/xkilldash9x/wizprobe/internal/findings"
	"github.com/xkilldash9x/wizprobe/internal/store"
)

// -- Browser Mocks --

// MockDriver mocks browser.Driver.
type MockDriver struct {
	mock.Mock
}

var _ browser.Driver = (*MockDriver)(nil)

func (m *MockDriver) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	page, _ := args.Get(0).(browser.Page)
	return page, args.Error(1)
}

func (m *MockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockPage mocks browser.Page. Tests set Evaluate results with
// .Run(func(args mock.Arguments) { *args.Get(2).(*bool) = true }).
type MockPage struct {
	mock.Mock
}

var _ browser.Page = (*MockPage)(nil)

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) WaitReady(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPage) Evaluate(ctx context.Context, script string, out any) error {
	return m.Called(ctx, script, out).Error(0)
}

func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Fill(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPage) Blur(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) SelectOption(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPage) Screenshot(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Store Mock --

// MockStore mocks the run history used by the commands.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) SaveRun(ctx context.Context, rec findings.Record) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockStore) GetRun(ctx context.Context, id string) (findings.Record, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(findings.Record)
	return rec, args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]store.RunSummary)
	return runs, args.Error(1)
}
