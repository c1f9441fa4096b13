package scanner

import "strings"

var rearHints = []string{"back", "rear", "environment"}

// PreferredCamera picks the first camera whose label suggests it faces
// away from the user, falling back to the first camera. ok is false for
// an empty list.
func PreferredCamera(cameras []Camera) (Camera, bool) {
	if len(cameras) == 0 {
		return Camera{}, false
	}
	for _, c := range cameras {
		label := strings.ToLower(c.Label)
		for _, hint := range rearHints {
			if strings.Contains(label, hint) {
				return c, true
			}
		}
	}
	return cameras[0], true
}

func findCamera(cameras []Camera, id string) (Camera, bool) {
	for _, c := range cameras {
		if c.ID == id {
			return c, true
		}
	}
	return Camera{}, false
}
