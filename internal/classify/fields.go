package classify

// Lookup returns the value of the first key in keys that is present in data.
// A present key wins even when its value is empty. If none of the keys is
// present, def is returned.
func Lookup(data map[string]string, def string, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			return v
		}
	}
	return def
}

// Key chains, in priority order.
var (
	typeKeys    = []string{"type"}
	tableKeys   = []string{"table_number"}
	callIDKeys  = []string{"call_id", "callId", "callID"}
	channelKeys = []string{"channel_id", "android_channel_id"}
	titleKeys   = []string{"title"}
	bodyKeys    = []string{"message"}
	urgencyKeys = []string{"urgency", "priority"}
	routeKeys   = []string{"route", "url"}
)
