package engine

import "github.com/san-kum/fitpipe/server/models"

const (
	// MinVisibility is the visibility below which a landmark is not trusted.
	MinVisibility = 0.75
	// MinPresence gates the important keypoints of a profile.
	MinPresence = 0.9
)

// SelectSide votes between the left and right half of the body. For every
// symmetric role the side with the higher visibility earns a vote and the
// side with the higher presence earns a vote. The side with strictly more
// votes wins; a tie keeps previous.
//
// ok is false when both sides of any role are below MinVisibility, in which
// case the frame cannot be trusted at all.
func SelectSide(frame *models.Frame, roles []Role, previous Side) (side Side, ok bool) {
	if previous != SideRight {
		previous = SideLeft
	}

	var left, right int
	for _, r := range roles {
		pair := r.Pair()
		l, rt := frame.At(pair[0]), frame.At(pair[1])

		if l.Visibility < MinVisibility && rt.Visibility < MinVisibility {
			return previous, false
		}

		switch {
		case l.Visibility > rt.Visibility:
			left++
		case rt.Visibility > l.Visibility:
			right++
		}
		switch {
		case l.Presence > rt.Presence:
			left++
		case rt.Presence > l.Presence:
			right++
		}
	}

	switch {
	case left > right:
		return SideLeft, true
	case right > left:
		return SideRight, true
	default:
		return previous, true
	}
}

// allVisible reports whether every landmark of every role, on both sides,
// reaches MinVisibility.
func allVisible(frame *models.Frame, roles []Role) bool {
	for _, r := range roles {
		for _, l := range r.Pair() {
			if frame.At(l).Visibility < MinVisibility {
				return false
			}
		}
	}
	return true
}

// missingKeypoints returns the landmarks whose presence is below MinPresence.
func missingKeypoints(frame *models.Frame, important []models.Landmark) []models.Landmark {
	var missing []models.Landmark
	for _, l := range important {
		if frame.At(l).Presence < MinPresence {
			missing = append(missing, l)
		}
	}
	return missing
}
