package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-signal-alerts/internal/config"
	"market-signal-alerts/internal/task"
)

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: "memory"},
		Notify:  config.NotifyConfig{Channel: "console"},
		Monitors: config.MonitorsConfig{
			FundingRate: config.MonitorConfig{
				Enabled:   true,
				Interval:  time.Minute,
				Window:    30 * time.Minute,
				Lookback:  time.Hour,
				Retention: time.Hour,
			},
		},
	}
}

func TestRunOnceStampsDuration(t *testing.T) {
	a := NewApp(testConfig(), zerolog.Nop())

	result, err := a.RunOnce(context.Background(), "fundingrate")
	if err != nil {
		t.Fatalf("RunOnce 失败: %v", err)
	}
	if result.Status != task.StatusOK {
		t.Fatalf("无符号配置应当是干净的空跑: %+v", result)
	}
	if result.Duration <= 0 {
		t.Fatal("应记录执行耗时")
	}
}

func TestRunOnceRejectsDisabledTask(t *testing.T) {
	a := NewApp(testConfig(), zerolog.Nop())

	if _, err := a.RunOnce(context.Background(), "price"); err == nil {
		t.Fatal("未启用任务应报错")
	}
}
