package fetcher

import (
	"fmt"

	"github.com/IshaanNene/martstalk/internal/identity"
)

// SpoofJS builds the script injected before any document script runs.
// It aligns what page JavaScript can observe (language, timezone,
// geolocation) with the identity's claimed locale, closing the gap
// between proxy exit location and browser-reported environment.
func SpoofJS(fp identity.Fingerprint) string {
	locale := fp.Locale
	if locale == "" {
		locale = "en-US"
	}
	timezone := fp.Timezone
	if timezone == "" {
		timezone = "America/New_York"
	}

	geoBlock := ""
	if fp.DisableGeolocation {
		geoBlock = `
		if (navigator.geolocation) {
			navigator.geolocation.getCurrentPosition = function(success, error) {
				if (error) error({ code: 1, message: "User denied Geolocation" });
			};
			navigator.geolocation.watchPosition = function(success, error) {
				if (error) error({ code: 1, message: "User denied Geolocation" });
				return 0;
			};
		}`
	}

	return fmt.Sprintf(`(() => {
	try {
		Object.defineProperty(navigator, 'language', { value: '%[1]s', configurable: true });
		Object.defineProperty(navigator, 'languages', { value: ['%[1]s', 'en'], configurable: true });
		%[3]s
		Date.prototype.getTimezoneOffset = function() {
			const offset = new Date().toLocaleString('%[1]s', { timeZone: '%[2]s', timeZoneName: 'shortOffset' }).split('GMT')[1];
			if (offset) return -parseInt(offset, 10) * 60;
			return -240;
		};
		Intl.DateTimeFormat.prototype.resolvedOptions = new Proxy(Intl.DateTimeFormat.prototype.resolvedOptions, {
			apply(target, self, args) {
				const options = Reflect.apply(target, self, args);
				options.timeZone = '%[2]s';
				options.locale = '%[1]s';
				return options;
			}
		});
	} catch (e) {}
})();`, locale, timezone, geoBlock)
}
