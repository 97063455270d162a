// Package ime connects copyx to the desktop as an input method.
//
// On linux copyx registers an IBus engine. IBus hands every key press in the
// focused application to the engine before the application sees it, which is
// exactly what shortcut expansion needs: the engine forwards the key to the
// expander and, when a shortcut completes, swallows the separator and edits
// the application's text through the surrounding-text protocol.
//
//	Key press → ProcessKeyEvent → expander.Loop.Dispatch → Decision
//	                                         ↓
//	          DeleteSurroundingText + CommitText (+ caret keys)
//
// The user enables copyx the same way as any other keyboard layout, so no
// accessibility permission or global key grab is involved. Fields that
// declare a password or PIN purpose are never edited.
//
// Other platforms build the package but Start reports ErrUnsupported.
package ime
