package trip

import "errors"

// Trip ドメインのエラー定義
var (
	ErrTripNotFound      = errors.New("便が見つかりません")
	ErrBusNotFound       = errors.New("バスが見つかりません")
	ErrBusNumberRequired = errors.New("バス番号は必須です")
	ErrBusIDRequired     = errors.New("バスIDは必須です")
	ErrRouteRequired     = errors.New("出発地と到着地は必須です")
	ErrInvalidCapacity   = errors.New("座席数は1以上である必要があります")
	ErrInvalidPrice      = errors.New("運賃は0以上である必要があります")
)
