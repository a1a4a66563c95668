// Package cache keeps synthesized audio on disk so that reading the same
// text with the same voice again does not hit the network.
package cache
