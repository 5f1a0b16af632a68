package repository

import "errors"

var ErrNotFound = errors.New("not found")

// versionが変わっていて更新できなかった（同時更新）
var ErrStaleVersion = errors.New("stale version")

// 一意制約違反
var ErrDuplicate = errors.New("duplicate")
