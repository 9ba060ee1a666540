package chart

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// settle gives echarts time to draw before the screenshot.
const settle = 1500 * time.Millisecond

var (
	probeOnce sync.Once
	probeErr  error
)

// EnsureHeadlessAvailable starts a headless browser once per process and
// reports whether PNG export can work on this host.
func EnsureHeadlessAvailable(ctx context.Context) error {
	probeOnce.Do(func() {
		browser, cancel := chromedp.NewContext(ctx)
		defer cancel()
		probeErr = chromedp.Run(browser)
	})
	return probeErr
}

// RenderPNG renders the chart page and screenshots it with headless Chrome.
func RenderPNG(ctx context.Context, in Input) ([]byte, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return nil, fmt.Errorf("headless chrome unavailable: %w", err)
	}
	var page bytes.Buffer
	if err := RenderHTML(&page, in); err != nil {
		return nil, err
	}
	browser, cancel := chromedp.NewContext(ctx)
	defer cancel()
	browser, cancelTimeout := context.WithTimeout(browser, 20*time.Second)
	defer cancelTimeout()

	var png []byte
	err := chromedp.Run(browser,
		chromedp.EmulateViewport(pageWidthPx, priceHeight+volumeHeight+rsiHeight),
		chromedp.Navigate("data:text/html;base64,"+base64.StdEncoding.EncodeToString(page.Bytes())),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.FullScreenshot(&png, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("screenshot chart: %w", err)
	}
	return png, nil
}
