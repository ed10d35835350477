// Package session labels price timestamps with the US equity market session.
//
// Windows (exchange local time):
//   - pre:     04:00 - 09:30
//   - regular: 09:30 - close (16:00, or 13:00 on early-close days)
//   - post:    close - 20:00
//   - closed:  everything else, weekends and exchange holidays
//
// Classification never fails: when the calendar cannot answer for a date the
// classifier logs a warning and assumes a normal 16:00 close.
package session
