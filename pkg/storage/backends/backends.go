// Package backends 汇总所有可编码的存储适配器
// 只需空白导入本包即可让 storage.Decode 识别全部 type_string
package backends

import (
	_ "zarrvault/pkg/storage/cache"
	_ "zarrvault/pkg/storage/disk"
	_ "zarrvault/pkg/storage/memory"
	_ "zarrvault/pkg/storage/s3"
	_ "zarrvault/pkg/storage/sqlkv"
)
