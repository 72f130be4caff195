// Package git reads source revision information for build reports.
package git
