// Package dxgi enumerates displays and captures their desktop contents
// through DXGI Desktop Duplication.
//
// Displays walks adapters and their outputs and yields a *Display for
// every output that supports duplication. A Capturer bound to a Display
// returns successive frames as BGRA byte views. When the session reports
// the desktop image in system memory the surface is mapped directly;
// otherwise each frame is copied into a CPU-readable staging texture.
//
// A view returned by Capturer.Frame is borrowed: it is valid until the next
// Frame call or Close. Capturers are not safe for concurrent use.
package dxgi

import "github.com/breeze-rmm/scrap/internal/logging"

var log = logging.L("dxgi")
