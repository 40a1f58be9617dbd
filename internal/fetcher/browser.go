package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/picker"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

const (
	pickBinding  = "reviewgoatPick"
	settleWindow = 300 * time.Millisecond
)

// BrowserPage drives a scrape in a real browser tab via Rod. The next
// control is clicked in place, so script-driven pagination works.
type BrowserPage struct {
	browser     *rod.Browser
	page        *rod.Page
	cfg         *config.FetcherConfig
	ownsBrowser bool
	logger      *slog.Logger

	mu sync.Mutex
}

// NewBrowserPage launches a browser, or attaches to cfg.ControlURL, and
// opens a blank tab.
func NewBrowserPage(ctx context.Context, cfg *config.FetcherConfig, logger *slog.Logger) (*BrowserPage, error) {
	b := &BrowserPage{
		cfg:    cfg,
		logger: logger.With("component", "browser_page"),
	}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		u, err := b.launchBrowser()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		b.ownsBrowser = true
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	b.browser = browser

	var (
		page *rod.Page
		err  error
	)
	if cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = b.closeBrowser()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	b.page = page

	if len(cfg.UserAgents) > 0 {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgents[0]}); err != nil {
			b.logger.Warn("failed to set user agent", "error", err)
		}
	}

	b.logger.Info("browser page ready",
		"headless", cfg.Headless,
		"stealth", cfg.Stealth,
		"attached", !b.ownsBrowser,
	)
	return b, nil
}

// launchBrowser starts a Chromium instance with appropriate flags.
func (b *BrowserPage) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(b.cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")
	return l.Launch()
}

// Open navigates the tab to rawURL and waits for it to settle.
func (b *BrowserPage) Open(ctx context.Context, rawURL string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.page.Context(ctx).Timeout(b.timeout())
	if err := page.Navigate(rawURL); err != nil {
		return &types.FetchError{URL: rawURL, Err: err}
	}
	if err := page.WaitLoad(); err != nil {
		return &types.FetchError{URL: rawURL, Err: err}
	}
	if err := page.WaitStable(settleWindow); err != nil {
		b.logger.Warn("page stability timeout, continuing", "url", rawURL, "error", err)
	}
	return nil
}

// Snapshot parses the live DOM into a Tree.
func (b *BrowserPage) Snapshot(ctx context.Context) (dom.Tree, error) {
	return b.document(ctx)
}

func (b *BrowserPage) document(ctx context.Context) (*dom.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.page.Context(ctx)
	body, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	pageURL := ""
	if info, err := page.Info(); err == nil && info != nil {
		pageURL = info.URL
	}
	return dom.NewDocumentFromString(body, pageURL)
}

// ClickNext clicks the first element matching selector. When a native
// click is refused (covered or off-screen element) a scripted click is
// dispatched instead.
func (b *BrowserPage) ClickNext(ctx context.Context, selector string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := b.page.Context(ctx).Timeout(b.timeout())
	var (
		els rod.Elements
		err error
	)
	if xp, ok := strings.CutPrefix(selector, dom.XPathPrefix); ok {
		els, err = page.ElementsX(xp)
	} else {
		els, err = page.Elements(selector)
	}
	if err != nil {
		return &types.SelectorError{Selector: selector, Err: err}
	}
	if els.Empty() {
		return fmt.Errorf("%w: %s", types.ErrNoNextTarget, selector)
	}

	el := els.First()
	if err := el.ScrollIntoView(); err != nil {
		b.logger.Debug("scroll into view failed", "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		b.logger.Debug("native click refused, dispatching scripted click", "error", err)
		if _, err := el.Eval(`() => this.click()`); err != nil {
			return fmt.Errorf("click %s: %w", selector, err)
		}
	}
	return nil
}

// PickEvents arms an element picker in the live tab. Hovered elements are
// outlined; a click emits EventPicked with the marked snapshot, Escape
// emits EventCancelled. The returned stop func disarms the picker and must
// be called once the caller is done.
func (b *BrowserPage) PickEvents(ctx context.Context) (<-chan picker.Event, func(), error) {
	signals := make(chan bool, 1)
	stopExpose, err := b.page.Expose(pickBinding, func(req gson.JSON) (interface{}, error) {
		select {
		case signals <- !req.Get("cancelled").Bool():
		default:
		}
		return nil, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("expose pick binding: %w", err)
	}

	if _, err := b.page.Context(ctx).Eval(armPickerJS, picker.MarkerAttr, pickBinding); err != nil {
		_ = stopExpose()
		return nil, nil, fmt.Errorf("arm picker: %w", err)
	}

	pickCtx, cancel := context.WithCancel(ctx)
	events := make(chan picker.Event, 1)
	go func() {
		defer close(events)
		for {
			select {
			case <-pickCtx.Done():
				return
			case picked := <-signals:
				ev := picker.Event{Kind: picker.EventCancelled}
				if picked {
					pe, err := b.pickedEvent(pickCtx)
					if err != nil {
						b.logger.Warn("could not capture picked element", "error", err)
					} else {
						ev = pe
					}
				}
				select {
				case events <- ev:
				case <-pickCtx.Done():
					return
				}
			}
		}
	}()

	stop := func() {
		cancel()
		if err := stopExpose(); err != nil {
			b.logger.Debug("remove pick binding", "error", err)
		}
		_, _ = b.page.Eval(disarmPickerJS, picker.MarkerAttr)
	}
	return events, stop, nil
}

func (b *BrowserPage) pickedEvent(ctx context.Context) (picker.Event, error) {
	doc, err := b.document(ctx)
	if err != nil {
		return picker.Event{}, err
	}
	n := picker.TakeMarked(doc.Root())
	if n == nil {
		return picker.Event{}, errors.New("no marked element in snapshot")
	}
	if _, err := b.page.Context(ctx).Eval(disarmPickerJS, picker.MarkerAttr); err != nil {
		b.logger.Debug("clear pick marker", "error", err)
	}
	return picker.Event{Kind: picker.EventPicked, Tree: doc, Node: n}, nil
}

// Close closes the tab, and the browser when it was launched here.
func (b *BrowserPage) Close() error {
	if b.page != nil {
		_ = b.page.Close()
	}
	return b.closeBrowser()
}

func (b *BrowserPage) closeBrowser() error {
	if b.browser == nil || !b.ownsBrowser {
		return nil
	}
	return b.browser.Close()
}

// Type returns the driver type identifier.
func (b *BrowserPage) Type() string {
	return "browser"
}

func (b *BrowserPage) timeout() time.Duration {
	if b.cfg.RequestTimeout > 0 {
		return b.cfg.RequestTimeout
	}
	return 30 * time.Second
}

const armPickerJS = `(marker, binding) => {
  if (window.__reviewgoatPicker) return;
  let last = null;
  const restore = () => {
    if (last) { last.style.outline = last.__reviewgoatOutline || ''; last = null; }
  };
  const over = (e) => {
    restore();
    last = e.target;
    last.__reviewgoatOutline = last.style.outline;
    last.style.outline = '2px solid #ff9800';
  };
  const disarm = () => {
    document.removeEventListener('mouseover', over, true);
    document.removeEventListener('click', click, true);
    document.removeEventListener('keydown', key, true);
    restore();
    window.__reviewgoatPicker = null;
  };
  const click = (e) => {
    e.preventDefault();
    e.stopPropagation();
    disarm();
    document.querySelectorAll('[' + marker + ']').forEach((n) => n.removeAttribute(marker));
    e.target.setAttribute(marker, '1');
    window[binding]({ picked: true });
  };
  const key = (e) => {
    if (e.key !== 'Escape') return;
    disarm();
    window[binding]({ cancelled: true });
  };
  document.addEventListener('mouseover', over, true);
  document.addEventListener('click', click, true);
  document.addEventListener('keydown', key, true);
  window.__reviewgoatPicker = disarm;
}`

const disarmPickerJS = `(marker) => {
  if (window.__reviewgoatPicker) window.__reviewgoatPicker();
  document.querySelectorAll('[' + marker + ']').forEach((n) => n.removeAttribute(marker));
}`
