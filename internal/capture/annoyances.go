package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const annoyanceSettleDelay = 300 * time.Millisecond

// annoyanceSelectors are close buttons of common popups and interstitials
var annoyanceSelectors = []string{
	"button[class*='pencraft'][data-testid='maybeLater']",
	"#prestitialPopup button[alt='close']",
	".CampaignType--popup button[title='Close']",
	"a[role='button'].dialog-close-button",
	"a[onclick*='interstitialBox.closeit()']",
	"a.popmake-close",
	".popup-modal button.close-button",
	".popup-wrap a.close-popup",
	"a.modal1-close",
	".modal-dialog button[data-dismiss='modal']",
	"button[data-action='close-mc-modal']",
}

func clickJS(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	el.click();
	return true;
})()`, jsString(selector))
}

// clearAnnoyances clicks every known close button present on the page.
// Failures are logged and ignored. It returns the number of clicks.
func clearAnnoyances(ctx context.Context, tab Tab, logger *zap.Logger) (int, error) {
	clicked := 0
	for _, sel := range annoyanceSelectors {
		var ok bool
		if err := tab.Evaluate(ctx, clickJS(sel), &ok); err != nil {
			logger.Debug("Annoyance check failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		logger.Debug("Dismissed annoyance", zap.String("selector", sel))
		clicked++
		if err := sleepCtx(ctx, annoyanceSettleDelay); err != nil {
			return clicked, err
		}
	}
	return clicked, nil
}
