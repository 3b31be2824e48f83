package service

import "errors"

// ErrNotFound возвращается, когда инцидент, оповещение или токен
// с указанным идентификатором не существует. Хэндлеры транслируют
// его в 404, всё остальное - в 500.
var ErrNotFound = errors.New("not found")
