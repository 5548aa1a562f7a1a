package window

import (
	"testing"
	"time"
)

func TestAnalyzeInsufficientData(t *testing.T) {
	if got := Analyze(nil); got != nil {
		t.Fatalf("空序列应返回 nil, 实际 %+v", got)
	}
	if got := Analyze([]Sample{{Value: 1, Timestamp: time.Now()}}); got != nil {
		t.Fatalf("单样本应返回 nil, 实际 %+v", got)
	}
}

func TestAnalyzeTwoSamples(t *testing.T) {
	base := time.Unix(0, 0)
	analysis := Analyze([]Sample{
		{Value: 1, Timestamp: base},
		{Value: 1.5, Timestamp: base.Add(time.Minute)},
	})
	if analysis == nil {
		t.Fatal("两个样本应产生分析结果")
	}
	if analysis.ChangeRate != 0.5 {
		t.Fatalf("changeRate 期望 0.5, 实际 %v", analysis.ChangeRate)
	}
	if analysis.Volatility != 0.5 {
		t.Fatalf("volatility 期望 0.5, 实际 %v", analysis.Volatility)
	}
	if analysis.DirectionChange {
		t.Fatal("同号不应判定为方向反转")
	}
}

func TestAnalyzeSortsByTimestamp(t *testing.T) {
	base := time.Unix(0, 0)
	analysis := Analyze([]Sample{
		{Value: 3, Timestamp: base.Add(2 * time.Minute)},
		{Value: 1, Timestamp: base},
		{Value: 2, Timestamp: base.Add(time.Minute)},
	})
	if analysis == nil {
		t.Fatal("应产生分析结果")
	}
	if analysis.Oldest.Value != 1 || analysis.Newest.Value != 3 {
		t.Fatalf("排序错误: oldest=%v newest=%v", analysis.Oldest.Value, analysis.Newest.Value)
	}
	if analysis.ChangeRate != 2 {
		t.Fatalf("changeRate 期望 2, 实际 %v", analysis.ChangeRate)
	}
}

func TestAnalyzeVolatilityUsesWholeWindow(t *testing.T) {
	base := time.Unix(0, 0)
	analysis := Analyze([]Sample{
		{Value: 1, Timestamp: base},
		{Value: 5, Timestamp: base.Add(time.Minute)},
		{Value: 1.2, Timestamp: base.Add(2 * time.Minute)},
	})
	if analysis == nil {
		t.Fatal("应产生分析结果")
	}
	// Endpoints alone would give 0.2; the in-window spike must be included.
	if analysis.Volatility != 4 {
		t.Fatalf("volatility 期望 4, 实际 %v", analysis.Volatility)
	}
}

func TestAnalyzeDirectionChange(t *testing.T) {
	base := time.Unix(0, 0)
	analysis := Analyze([]Sample{
		{Value: -0.01, Timestamp: base},
		{Value: 0.02, Timestamp: base.Add(time.Minute)},
	})
	if analysis == nil {
		t.Fatal("应产生分析结果")
	}
	if !analysis.DirectionChange {
		t.Fatal("穿越零轴应判定为方向反转")
	}
}

func TestSeriesPrunesOutsideWindow(t *testing.T) {
	series := NewSeries(5 * time.Minute)
	now := time.Now()

	series.Append(Sample{Value: 1, Timestamp: now.Add(-10 * time.Minute)})
	series.Append(Sample{Value: 2, Timestamp: now.Add(-3 * time.Minute)})
	series.Append(Sample{Value: 3, Timestamp: now})

	if series.Len() != 2 {
		t.Fatalf("窗口外样本应被清理, 剩余 %d", series.Len())
	}
	if series.Samples()[0].Value != 2 {
		t.Fatalf("应保留窗口内最旧样本, 实际 %v", series.Samples()[0].Value)
	}
}

func TestSeriesSetObserveAndAnalyze(t *testing.T) {
	set := NewSeriesSet(10 * time.Minute)
	now := time.Now()

	set.Observe("BTCUSDT", 100, now.Add(-2*time.Minute))
	if analysis := set.Analyze("BTCUSDT"); analysis != nil {
		t.Fatal("单样本不应产生分析结果")
	}

	set.Observe("BTCUSDT", 103, now)
	analysis := set.Analyze("BTCUSDT")
	if analysis == nil {
		t.Fatal("两个样本应产生分析结果")
	}
	if analysis.ChangeRate != 3 {
		t.Fatalf("changeRate 期望 3, 实际 %v", analysis.ChangeRate)
	}

	if set.Analyze("ETHUSDT") != nil {
		t.Fatal("未知 symbol 应返回 nil")
	}
}
