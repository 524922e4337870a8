// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package formats

import "github.com/danielhkuo/tabrela/models"

// Positions returns the ordered team positions for a format, or nil for an
// unknown format.
func Positions(format string) []string {
	switch format {
	case models.FormatTwoTeam:
		return []string{models.PositionGovernment, models.PositionOpposition}
	case models.FormatFourTeam:
		return []string{
			models.PositionOpeningGovernment,
			models.PositionOpeningOpposition,
			models.PositionClosingGovernment,
			models.PositionClosingOpposition,
		}
	}
	return nil
}

// TeamCount returns the number of teams for a format, or 0 for an unknown
// format.
func TeamCount(format string) int {
	return len(Positions(format))
}

// ValidFormat reports whether format is a known team format.
func ValidFormat(format string) bool {
	return format == models.FormatTwoTeam || format == models.FormatFourTeam
}

// ValidPosition reports whether position exists under format.
func ValidPosition(format, position string) bool {
	for _, p := range Positions(format) {
		if p == position {
			return true
		}
	}
	return false
}

// SpeakerRoles returns the ordered speaker roles for a position under a
// format. Two-team positions share the generic first/second roles, with the
// reply role appended only when the series allows reply speeches. Four-team
// positions carry two named roles each and never have replies. Returns nil
// for an unknown format/position combination.
func SpeakerRoles(format, position string, allowReply bool) []string {
	switch format {
	case models.FormatTwoTeam:
		if position != models.PositionGovernment && position != models.PositionOpposition {
			return nil
		}
		roles := []string{models.SpeakerRoleFirst, models.SpeakerRoleSecond}
		if allowReply {
			roles = append(roles, models.SpeakerRoleReply)
		}
		return roles
	case models.FormatFourTeam:
		switch position {
		case models.PositionOpeningGovernment:
			return []string{models.SpeakerRolePM, models.SpeakerRoleDPM}
		case models.PositionOpeningOpposition:
			return []string{models.SpeakerRoleLO, models.SpeakerRoleDLO}
		case models.PositionClosingGovernment:
			return []string{models.SpeakerRoleMG, models.SpeakerRoleGW}
		case models.PositionClosingOpposition:
			return []string{models.SpeakerRoleMO, models.SpeakerRoleOW}
		}
	}
	return nil
}

// ValidRole reports whether role is a valid speaker role for position under
// format, honoring the reply-speech setting.
func ValidRole(format, position, role string, allowReply bool) bool {
	for _, r := range SpeakerRoles(format, position, allowReply) {
		if r == role {
			return true
		}
	}
	return false
}
