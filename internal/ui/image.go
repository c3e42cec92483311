package ui

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	chafa "github.com/ploMP4/chafa-go"
	_ "golang.org/x/image/webp"

	"reels/internal/config"
)

var (
	imageCache   = make(map[string]string)
	imageCacheMu sync.RWMutex

	imageClient = &http.Client{Timeout: config.ImageFetchTimeout}
)

func fetchImage(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := imageClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poster: HTTP %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	return img, err
}

// RenderPoster draws the poster at url into a width x height cell box.
// Results are cached per url and size.
func RenderPoster(ctx context.Context, url string, width, height int) string {
	if url == "" || width <= 0 || height <= 0 {
		return renderPlaceholder(width, height)
	}
	cacheKey := fmt.Sprintf("%s@%dx%d", url, width, height)

	imageCacheMu.RLock()
	if cached, ok := imageCache[cacheKey]; ok {
		imageCacheMu.RUnlock()
		return cached
	}
	imageCacheMu.RUnlock()

	img, err := fetchImage(ctx, url)
	if err != nil {
		return renderPlaceholder(width, height)
	}

	bounds := img.Bounds()
	renderWidth, renderHeight := calculateRenderSize(bounds.Dx(), bounds.Dy(), width, height)
	result := renderChafa(img, renderWidth, renderHeight)

	imageCacheMu.Lock()
	imageCache[cacheKey] = result
	imageCacheMu.Unlock()

	return result
}

func calculateRenderSize(imgWidth, imgHeight, maxWidth, maxHeight int) (int, int) {
	if imgWidth <= 0 || imgHeight <= 0 {
		return maxWidth, maxHeight
	}

	// 一个字符格大约是两倍宽的高度，竖版封面按高度铺满
	const cellAspect = 2.0
	aspect := float64(imgWidth) / float64(imgHeight) * cellAspect

	if w := int(float64(maxHeight) * aspect); w <= maxWidth {
		return max(w, 1), maxHeight
	}
	return maxWidth, max(int(float64(maxWidth)/aspect), 1)
}

// renderChafa draws img as truecolor block symbols, width x height cells.
func renderChafa(img image.Image, width, height int) string {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	imgWidth, imgHeight := rgba.Bounds().Dx(), rgba.Bounds().Dy()

	ccfg := chafa.CanvasConfigNew()
	defer chafa.CanvasConfigUnref(ccfg)

	chafa.CanvasConfigSetGeometry(ccfg, int32(width), int32(height))
	chafa.CanvasConfigSetCellGeometry(ccfg, 8, 8)
	chafa.CanvasConfigSetCanvasMode(ccfg, chafa.CHAFA_CANVAS_MODE_TRUECOLOR)
	chafa.CanvasConfigSetColorSpace(ccfg, chafa.CHAFA_COLOR_SPACE_DIN99D)
	chafa.CanvasConfigSetPreprocessingEnabled(ccfg, true)
	chafa.CanvasConfigSetWorkFactor(ccfg, 1.0)

	symbolMap := chafa.SymbolMapNew()
	defer chafa.SymbolMapUnref(symbolMap)
	chafa.SymbolMapAddByTags(symbolMap, chafa.CHAFA_SYMBOL_TAG_BLOCK|chafa.CHAFA_SYMBOL_TAG_HALF|chafa.CHAFA_SYMBOL_TAG_QUAD)
	chafa.CanvasConfigSetSymbolMap(ccfg, symbolMap)

	canvas := chafa.CanvasNew(ccfg)
	defer chafa.CanvasUnRef(canvas)

	chafa.CanvasDrawAllPixels(
		canvas,
		chafa.CHAFA_PIXEL_RGBA8_UNASSOCIATED,
		rgba.Pix,
		int32(imgWidth),
		int32(imgHeight),
		int32(imgWidth*4),
	)

	termDb := chafa.TermDbGetDefault()
	termInfo := chafa.TermDbGetFallbackInfo(termDb)
	defer chafa.TermInfoUnref(termInfo)

	return strings.TrimSuffix(chafa.CanvasPrint(canvas, termInfo).String(), "\n")
}

func renderPlaceholder(width, height int) string {
	style := lipgloss.NewStyle().
		Width(width).
		Height(height).
		Background(lipgloss.Color("237")).
		Foreground(lipgloss.Color("244")).
		Align(lipgloss.Center, lipgloss.Center)

	return style.Render("REEL")
}

// ClearImageCache drops every rendered poster.
func ClearImageCache() {
	imageCacheMu.Lock()
	imageCache = make(map[string]string)
	imageCacheMu.Unlock()
}
