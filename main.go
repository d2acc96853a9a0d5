package main

import (
	"context"
	"embed"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
	"github.com/MJE43/cash-count-desktop/internal/bindings"
	"github.com/MJE43/cash-count-desktop/internal/config"
	"github.com/MJE43/cash-count-desktop/internal/gamehttp"
	"github.com/MJE43/cash-count-desktop/internal/i18n"
	applog "github.com/MJE43/cash-count-desktop/internal/logger"
	"github.com/MJE43/cash-count-desktop/internal/presenter"
	"github.com/MJE43/cash-count-desktop/internal/roundstore"
)

//go:embed all:frontend/dist
var assets embed.FS

const appTitle = "Cash Count"

var (
	appCtx   context.Context
	appCtxMu sync.RWMutex
)

// buildWindowsOptions configures Windows-specific application settings
func buildWindowsOptions(log *zap.Logger) *windows.Options {
	return &windows.Options{
		BackdropType: windows.Mica,
		Theme:        windows.SystemDefault,
		CustomTheme: &windows.ThemeSettings{
			DarkModeTitleBar:   windows.RGB(18, 24, 20),
			DarkModeTitleText:  windows.RGB(226, 240, 228),
			DarkModeBorder:     windows.RGB(40, 64, 48),
			LightModeTitleBar:  windows.RGB(244, 250, 245),
			LightModeTitleText: windows.RGB(15, 42, 20),
			LightModeBorder:    windows.RGB(214, 232, 218),
		},

		WebviewIsTransparent: false,
		WindowIsTranslucent:  false,

		DisablePinchZoom:     true,
		IsZoomControlEnabled: false,
		ZoomFactor:           1.0,

		WindowClassName: "CashCountWindow",

		OnSuspend: func() {
			log.Info("windows entering low power mode")
		},
		OnResume: func() {
			log.Info("windows resuming from low power mode")
		},
	}
}

// buildMacOptions configures macOS-specific application settings
func buildMacOptions(title string) *mac.Options {
	return &mac.Options{
		TitleBar: &mac.TitleBar{
			TitlebarAppearsTransparent: false,
			HideTitle:                  false,
			HideTitleBar:               false,
			FullSizeContent:            false,
			UseToolbar:                 false,
			HideToolbarSeparator:       true,
		},
		WebviewIsTransparent: false,
		WindowIsTranslucent:  false,
		About: &mac.AboutInfo{
			Title: title,
			Message: "Count the banknotes as they fly past, then enter the total.\n\n" +
				"Every deal is provably fair and can be re-checked from the revealed seeds.\n" +
				"Built with Wails",
		},
	}
}

// buildLinuxOptions configures Linux-specific application settings
func buildLinuxOptions() *linux.Options {
	return &linux.Options{
		WindowIsTranslucent: false,
		WebviewGpuPolicy:    linux.WebviewGpuPolicyOnDemand,
		ProgramName:         "cash-count",
	}
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := applog.New(applog.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Development: cfg.Dev,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()
	zlog.Info("starting "+appTitle, zap.String("go", runtime.Version()), zap.String("locale", cfg.Locale))

	bundle, err := i18n.LoadEmbedded()
	if err != nil {
		zlog.Fatal("locale catalog", zap.Error(err))
	}
	if !bundle.HasLocale(cfg.Locale) {
		zlog.Warn("unsupported locale, falling back", zap.String("locale", cfg.Locale), zap.String("fallback", i18n.BaseLocale))
	}

	store, err := roundstore.NewMemory()
	if err != nil {
		zlog.Fatal("round journal", zap.Error(err))
	}

	dealer, err := banknotes.NewDealer(cfg.ClientSeed)
	if err != nil {
		zlog.Fatal("dealer", zap.Error(err))
	}

	gameMod := bindings.NewGameModule(bindings.GameOptions{
		Dealer:            dealer,
		Bundle:            bundle,
		Store:             store,
		Locale:            cfg.Locale,
		Logger:            zlog,
		ClockThroughInput: cfg.ClockThroughInput,
	})
	historyMod := bindings.NewHistoryModule(store)

	var httpSrv *gamehttp.Server
	if cfg.HTTPEnabled {
		dist, err := fs.Sub(assets, "frontend/dist")
		if err != nil {
			zlog.Fatal("frontend assets", zap.Error(err))
		}
		httpSrv = gamehttp.New(gamehttp.Options{
			Controller: gameMod.Controller(),
			Bundle:     bundle,
			Store:      store,
			Assets:     dist,
			Locale:     cfg.Locale,
			Port:       cfg.HTTPPort,
			Logger:     zlog,
		})
	}

	startup := func(ctx context.Context) {
		gameMod.Startup(ctx)
		historyMod.Startup(ctx)
		setAppContext(ctx)

		if httpSrv != nil {
			if err := httpSrv.Start(); err != nil {
				zlog.Warn("loopback http server failed to start", zap.Error(err))
			}
		}
	}

	beforeClose := func(ctx context.Context) (prevent bool) {
		if httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				zlog.Warn("http server shutdown", zap.Error(err))
			}
		}
		gameMod.Shutdown(ctx)
		setAppContext(nil)
		zlog.Info("application is closing")
		return false
	}

	title := windowTitle(bundle, cfg.Locale)
	if err := wails.Run(&options.App{
		Title:            title,
		Width:            480,
		Height:           820,
		MinWidth:         360,
		MinHeight:        640,
		WindowStartState: options.Normal,
		BackgroundColour: &options.RGBA{R: 18, G: 24, B: 20, A: 255},

		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		OnStartup:     startup,
		OnBeforeClose: beforeClose,
		OnDomReady: func(ctx context.Context) {
			zlog.Debug("dom ready")
		},
		OnShutdown: func(ctx context.Context) {
			if err := store.Close(); err != nil {
				zlog.Warn("close round journal", zap.Error(err))
			}
			zlog.Info("application shutdown complete")
		},

		Menu: buildAppMenu(gameMod, historyMod, zlog),

		Bind: []interface{}{gameMod, historyMod},

		Logger:             applog.NewWails(zlog),
		LogLevel:           applog.Level(zlog.Level()),
		LogLevelProduction: logger.ERROR,

		EnableDefaultContextMenu:         false,
		EnableFraudulentWebsiteDetection: false,

		ErrorFormatter: func(err error) any {
			if err == nil {
				return nil
			}
			return err.Error()
		},

		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId: "5b0e7c1a-3f64-4d2e-9a51-cash-count",
			OnSecondInstanceLaunch: func(data options.SecondInstanceData) {
				zlog.Info("second instance launch prevented", zap.Strings("args", data.Args))
			},
		},

		DragAndDrop: &options.DragAndDrop{
			EnableFileDrop:     false,
			DisableWebViewDrop: true,
		},

		Windows: buildWindowsOptions(zlog),
		Mac:     buildMacOptions(title),
		Linux:   buildLinuxOptions(),
	}); err != nil {
		zlog.Error("error running wails app", zap.Error(err))
		os.Exit(1)
	}

	zlog.Info("application exited normally")
}

func buildAppMenu(gameMod *bindings.GameModule, historyMod *bindings.HistoryModule, zlog *zap.Logger) *menu.Menu {
	rootMenu := menu.NewMenu()

	if runtime.GOOS == "darwin" {
		if appMenu := menu.AppMenu(); appMenu != nil {
			rootMenu.Append(appMenu)
		}
	}

	dispatch := func(action string) func(*menu.CallbackData) {
		return func(_ *menu.CallbackData) {
			if _, err := gameMod.Dispatch(action, ""); err != nil {
				zlog.Debug("menu action ignored", zap.String("action", action), zap.Error(err))
			}
		}
	}

	gameMenu := menu.NewMenu()
	gameMenu.AddText("New Round", keys.CmdOrCtrl("n"), dispatch(presenter.ActionStartRound))
	gameMenu.AddText("Main Menu", keys.CmdOrCtrl("m"), dispatch(presenter.ActionReturnToMenu))
	gameMenu.AddText("History", keys.CmdOrCtrl("h"), dispatch(presenter.ActionViewHistory))
	gameMenu.AddSeparator()
	gameMenu.AddText("Export History…", keys.CmdOrCtrl("e"), func(_ *menu.CallbackData) {
		path, err := historyMod.ExportCSV()
		if err != nil {
			zlog.Warn("export history", zap.Error(err))
			return
		}
		zlog.Info("history exported", zap.String("path", path))
		withAppContext(zlog, func(ctx context.Context) {
			openPathInExplorer(ctx, zlog, filepath.Dir(path))
		})
	})
	gameMenu.AddSeparator()
	gameMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		withAppContext(zlog, func(ctx context.Context) {
			wruntime.Quit(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("Game", gameMenu))

	langMenu := menu.NewMenu()
	active := gameMod.Locale()
	for _, locale := range gameMod.Locales() {
		locale := locale
		langMenu.AddRadio(localeName(locale), locale == active, nil, func(_ *menu.CallbackData) {
			if _, err := gameMod.SetLocale(locale); err != nil {
				zlog.Warn("switch locale", zap.String("locale", locale), zap.Error(err))
			}
		})
	}
	rootMenu.Append(menu.SubMenu("Language", langMenu))

	viewMenu := menu.NewMenu()
	viewMenu.AddText("Reload Frontend", keys.CmdOrCtrl("r"), func(_ *menu.CallbackData) {
		withAppContext(zlog, func(ctx context.Context) {
			wruntime.WindowReloadApp(ctx)
		})
	})
	viewMenu.AddText("Toggle Fullscreen", keys.Combo("f", keys.CmdOrCtrlKey, keys.ShiftKey), func(_ *menu.CallbackData) {
		withAppContext(zlog, func(ctx context.Context) {
			toggleFullscreen(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("View", viewMenu))

	helpMenu := menu.NewMenu()
	helpMenu.AddText("Fairness", nil, func(_ *menu.CallbackData) {
		f := gameMod.Fairness()
		withAppContext(zlog, func(ctx context.Context) {
			_, err := wruntime.MessageDialog(ctx, wruntime.MessageDialogOptions{
				Type:  wruntime.InfoDialog,
				Title: "Fairness",
				Message: "Server seed hash: " + f.Next.ServerSeedHash + "\n" +
					"Client seed: " + f.Next.ClientSeed + "\n\n" +
					"Rotate the seeds to reveal the server seed and verify past rounds.",
			})
			if err != nil {
				zlog.Debug("fairness dialog", zap.Error(err))
			}
		})
	})
	rootMenu.Append(menu.SubMenu("Help", helpMenu))

	return rootMenu
}

// windowTitle is the localized game title, which the window keeps for the session.
func windowTitle(bundle *i18n.Bundle, locale string) string {
	if title, ok := bundle.Message(bundle.Resolve(locale), "game.app.title"); ok && title != "" {
		return title
	}
	return appTitle
}

// localeName shows a locale in its own language, e.g. "русский (Россия)".
func localeName(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return locale
	}
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return locale
}

func openPathInExplorer(ctx context.Context, zlog *zap.Logger, path string) {
	if path == "" {
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		zlog.Debug("resolve path failed", zap.String("path", path), zap.Error(err))
		abs = path
	}

	wruntime.BrowserOpenURL(ctx, fileURI(abs))
}

func fileURI(path string) string {
	clean := filepath.ToSlash(path)
	if runtime.GOOS == "windows" && len(clean) > 0 && clean[0] != '/' {
		clean = "/" + clean
	}

	u := url.URL{Scheme: "file", Path: clean}
	return u.String()
}

func toggleFullscreen(ctx context.Context) {
	if wruntime.WindowIsFullscreen(ctx) {
		wruntime.WindowUnfullscreen(ctx)
		return
	}
	wruntime.WindowFullscreen(ctx)
}

func setAppContext(ctx context.Context) {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()
	appCtx = ctx
}

func withAppContext(zlog *zap.Logger, action func(context.Context)) {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()
	if ctx == nil {
		zlog.Debug("application context not initialised; ignoring menu action")
		return
	}
	action(ctx)
}
