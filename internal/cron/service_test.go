package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/leaflens/leaflens-server/pkg/logger"
)

type fakeLock struct {
	acquired bool
	held     bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: NewRegistry(success, failure),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if success.runs != 1 {
		t.Fatalf("expected success job to run once, ran %d", success.runs)
	}
	if failure.runs != 1 {
		t.Fatalf("expected failure job to run once, ran %d", failure.runs)
	}
}

func TestServiceRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	job := &testJob{name: "noop"}
	lock := &fakeLock{held: true}
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d times", job.runs)
	}
}

func TestServiceRunCycleReleasesLock(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: NewRegistry(&testJob{name: "noop"}),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if !lock.acquired {
		t.Fatal("expected lock to be acquired")
	}
	if lock.held {
		t.Fatal("expected lock to be released after cycle")
	}
}

func TestNewServiceRequiresLogger(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected error when logger missing")
	}
}
