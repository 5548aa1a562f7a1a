package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:         baseURL,
		AnnouncementURL: baseURL,
		Timeout:         2 * time.Second,
	}, zerolog.Nop())
}

func TestPremiumIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/premiumIndex" {
			t.Errorf("意外的请求路径: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("意外的 symbol 参数: %s", got)
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","markPrice":"65000.10","lastFundingRate":"0.00031","nextFundingTime":1756200000000,"time":1756190000000}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	defer client.Close()

	idx, err := client.PremiumIndex(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("获取资金费率失败: %v", err)
	}
	if idx.Symbol != "BTCUSDT" {
		t.Errorf("symbol 不匹配: %s", idx.Symbol)
	}
	if idx.LastFundingRate.String() != "0.00031" {
		t.Errorf("资金费率不匹配: %s", idx.LastFundingRate)
	}
}

func TestLongShortRatioTakesLatestBucket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"ETHUSDT","longShortRatio":"1.85","longAccount":"0.649","shortAccount":"0.351","timestamp":1756190000000}]`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	defer client.Close()

	ratio, err := client.LongShortRatio(context.Background(), "ETHUSDT", "5m")
	if err != nil {
		t.Fatalf("获取多空比失败: %v", err)
	}
	if ratio.LongShortRatio.String() != "1.85" {
		t.Errorf("多空比不匹配: %s", ratio.LongShortRatio)
	}
}

func TestLongShortRatioEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	defer client.Close()

	if _, err := client.LongShortRatio(context.Background(), "ETHUSDT", "5m"); err == nil {
		t.Fatal("空响应应当返回错误")
	}
}

func TestAPIErrorSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	defer client.Close()

	_, err := client.OpenInterest(context.Background(), "NOPE")
	if err == nil {
		t.Fatal("无效交易对应当返回错误")
	}
	if got := err.Error(); !strings.Contains(got, "400") || !strings.Contains(got, "Invalid symbol.") {
		t.Errorf("错误信息缺少 API 详情: %s", got)
	}
}

func TestAnnouncements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("catalogId"); got != "48" {
			t.Errorf("意外的 catalogId: %s", got)
		}
		w.Write([]byte(`{
			"code":"000000",
			"data":{"catalogs":[{"articles":[
				{"id":101,"code":"abc","title":"Binance Will List FOO (FOO)","releaseDate":1756190000000},
				{"id":102,"code":"def","title":"Binance Will List BAR (BAR)","releaseDate":1756191000000}
			]}]}
		}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	defer client.Close()

	articles, err := client.Announcements(context.Background(), 20)
	if err != nil {
		t.Fatalf("获取公告失败: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("公告数量不匹配: %d", len(articles))
	}
	if articles[0].Title != "Binance Will List FOO (FOO)" {
		t.Errorf("公告标题不匹配: %s", articles[0].Title)
	}
	if articles[1].ReleaseTime().Unix() != 1756191000 {
		t.Errorf("发布时间不匹配: %v", articles[1].ReleaseTime())
	}
}

func TestAnnouncementsBadCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"100001","data":{"catalogs":[]}}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	defer client.Close()

	if _, err := client.Announcements(context.Background(), 20); err == nil {
		t.Fatal("非成功 code 应当返回错误")
	}
}
