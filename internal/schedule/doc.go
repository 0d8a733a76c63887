// Package schedule parses free-text reminder time specs into normalized
// UTC schedules and computes next trigger instants.
//
// Both halves are pure: parsing takes an explicit reference instant and
// local zone, occurrence computation takes explicit creation and "now"
// instants, so everything here is testable without a real clock.
package schedule
