// Package overlay builds the view model for one celebration: themed title,
// BRL amount, credited members with photo or initial placeholder, and the
// product or company line. It also renders the plain-text announcement body
// and a still PNG card.
package overlay
