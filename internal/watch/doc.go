// Package watch provides the live side of livemirror. It monitors the
// source tree with fsnotify, optionally mirrors each change as it happens,
// debounces bursts of events, and hands a single notification per quiet
// window to the broadcast hub.
package watch
