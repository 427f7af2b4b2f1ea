// Package notes implements the filesystem collaborators behind the server's
// tool, prompt, and resource registries: reading, writing, moving, and
// deleting markdown notes inside registered vaults, frontmatter-aware tag
// manipulation, and ranked full-text search.
//
// Every operation resolves its target strictly inside a registered vault
// root; relative paths that climb out of the vault are rejected before any
// filesystem access.
package notes
