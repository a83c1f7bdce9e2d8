// Package eas holds the Emergency Alert System reference tables: originator
// codes, event codes and FIPS state and subdivision codes used in SAME
// location fields.
package eas
