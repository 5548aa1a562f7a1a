package dedupe

import (
	"testing"
	"time"
)

type candidate struct {
	symbol    string
	direction Direction
	value     float64
}

func (c candidate) record(at time.Time) Record {
	return Record{Symbol: c.symbol, Direction: c.direction, Value: c.value, Timestamp: at}
}

func filterOne(t *testing.T, c candidate, history []Record, opts Options) bool {
	t.Helper()
	now := time.Now()
	if opts.Now == nil {
		opts.Now = func() time.Time { return now }
	}
	result := Filter([]candidate{c}, func(c candidate) Record { return c.record(now) }, history, opts)
	if len(result.Fresh)+len(result.Duplicates) != 1 {
		t.Fatalf("结果应恰好包含一个输入: fresh=%d dup=%d", len(result.Fresh), len(result.Duplicates))
	}
	return len(result.Duplicates) == 1
}

func TestDirectionSensitivity(t *testing.T) {
	now := time.Now()
	history := []Record{{Symbol: "X", Direction: DirectionUp, Value: 5, Timestamp: now}}
	opts := Options{Lookback: time.Hour, ToleranceAbs: 0.5, DirectionSensitive: true, Now: func() time.Time { return now }}

	if filterOne(t, candidate{"X", DirectionDown, 5.01}, history, opts) {
		t.Fatal("相反方向不应判定为重复, 即使数值几乎相同")
	}
	if !filterOne(t, candidate{"X", DirectionUp, 5.01}, history, opts) {
		t.Fatal("同方向且在容差内应判定为重复")
	}
}

func TestFlatNeverMatchesUpOrDown(t *testing.T) {
	now := time.Now()
	history := []Record{{Symbol: "X", Direction: DirectionFlat, Value: 0, Timestamp: now}}
	opts := Options{Lookback: time.Hour, ToleranceAbs: 1, DirectionSensitive: true, Now: func() time.Time { return now }}

	if filterOne(t, candidate{"X", DirectionUp, 0.1}, history, opts) {
		t.Fatal("flat 历史不应匹配 up 候选")
	}
	if filterOne(t, candidate{"X", DirectionDown, -0.1}, history, opts) {
		t.Fatal("flat 历史不应匹配 down 候选")
	}
}

func TestMagnitudeTolerance(t *testing.T) {
	now := time.Now()
	history := []Record{{Symbol: "X", Direction: DirectionUp, Value: 1.20, Timestamp: now}}
	opts := Options{Lookback: time.Hour, ToleranceAbs: 0.05, Now: func() time.Time { return now }}

	if !filterOne(t, candidate{"X", DirectionUp, 1.22}, history, opts) {
		t.Fatal("差值 0.02 在容差 0.05 内, 应为重复")
	}
	if filterOne(t, candidate{"X", DirectionUp, 1.30}, history, opts) {
		t.Fatal("差值 0.10 超出容差 0.05, 应为新信号")
	}
}

func TestPercentTolerance(t *testing.T) {
	now := time.Now()
	history := []Record{{Symbol: "X", Direction: DirectionUp, Value: 100, Timestamp: now}}
	opts := Options{Lookback: time.Hour, TolerancePercent: 2, Now: func() time.Time { return now }}

	if !filterOne(t, candidate{"X", DirectionUp, 101.5}, history, opts) {
		t.Fatal("1.5% 偏差在 2% 容差内, 应为重复")
	}
	if filterOne(t, candidate{"X", DirectionUp, 105}, history, opts) {
		t.Fatal("5% 偏差超出 2% 容差, 应为新信号")
	}
}

func TestLookbackWindow(t *testing.T) {
	now := time.Now()
	history := []Record{{Symbol: "X", Direction: DirectionUp, Value: 5, Timestamp: now.Add(-2 * time.Hour)}}
	opts := Options{Lookback: time.Hour, ToleranceAbs: 1, Now: func() time.Time { return now }}

	if filterOne(t, candidate{"X", DirectionUp, 5}, history, opts) {
		t.Fatal("回看窗口外的历史不应再抑制候选")
	}
}

func TestDifferentSymbolNeverDuplicate(t *testing.T) {
	now := time.Now()
	history := []Record{{Symbol: "X", Direction: DirectionUp, Value: 5, Timestamp: now}}
	opts := Options{Lookback: time.Hour, ToleranceAbs: 10, Now: func() time.Time { return now }}

	if filterOne(t, candidate{"Y", DirectionUp, 5}, history, opts) {
		t.Fatal("不同 symbol 不应判定为重复")
	}
}

func TestClassify(t *testing.T) {
	if Classify(0.1) != DirectionUp {
		t.Fatal("正值应为 up")
	}
	if Classify(-0.1) != DirectionDown {
		t.Fatal("负值应为 down")
	}
	if Classify(0) != DirectionFlat {
		t.Fatal("零应为 flat")
	}
}
