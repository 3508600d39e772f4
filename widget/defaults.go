package widget

// defaultDocument builds the initial widget document. Returned fresh on every
// call so callers can mutate their copy freely.
func defaultDocument() map[string]any {
	return map[string]any{
		"global": map[string]any{
			"theme":       "default",
			"transparent": false,
			"font":        "sans",
			"animation":   "fade-in",
		},
		"counter": map[string]any{
			"count": float64(0),
			"title": "Counter",
			"step":  float64(1),
			"sound": false,
		},
		"timer": map[string]any{
			"duration":   float64(300),
			"remaining":  float64(300),
			"isRunning":  false,
			"mode":       "countdown",
			"showCircle": true,
			"alarm":      false,
		},
		"social": map[string]any{
			"handles": []any{
				map[string]any{"platform": "twitter", "handle": "@Streamer"},
				map[string]any{"platform": "twitch", "handle": "StreamerLive"},
			},
			"duration":  float64(10),
			"layout":    "horizontal",
			"showIcons": true,
		},
		"progress": map[string]any{
			"current":        float64(0),
			"max":            float64(100),
			"title":          "Subscriber Goal",
			"gradientStart":  "#4f46e5",
			"gradientEnd":    "#ec4899",
			"showPercentage": true,
			"showFraction":   true,
		},
		"goals": map[string]any{
			"items": []any{
				map[string]any{"id": float64(1), "text": "Start Stream", "completed": true},
				map[string]any{"id": float64(2), "text": "Just Chatting", "completed": false},
				map[string]any{"id": float64(3), "text": "Game Time", "completed": false},
			},
			"title":         "Stream Goals",
			"showCompleted": true,
		},
		"wheel": map[string]any{
			"segments": []any{
				map[string]any{"id": float64(1), "text": "Prize 1", "color": "#ef4444"},
				map[string]any{"id": float64(2), "text": "Prize 2", "color": "#3b82f6"},
				map[string]any{"id": float64(3), "text": "Prize 3", "color": "#10b981"},
				map[string]any{"id": float64(4), "text": "Prize 4", "color": "#f59e0b"},
			},
			"winner":     nil,
			"isSpinning": false,
			"title":      "Spin Wheel",
		},
		"highlight": map[string]any{
			"message":  nil,
			"style":    "modern",
			"autoHide": float64(0),
		},
		"activityConfig": map[string]any{
			"limit":  float64(5),
			"filter": []any{"follow", "sub", "cheer", "raid", "tip"},
			"layout": "list",
			"title":  "Recent Activity",
		},
		"recentEvents": []any{},
	}
}
