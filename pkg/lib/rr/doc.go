// Package rr 提供资源记录的身份与编码
//
// 记录身份由 (name, type, class) 构成：
//   - 名字比较大小写不敏感，每个 Name 预先计算规范形式和 32 位 murmur3 哈希，
//     使相等判断在绝大多数情况下只比较一个整数
//   - 记录数据（rdata）以未压缩线格式保存，比较方式由记录类型声明：
//     原始字节（A/AAAA/TXT ...）、内嵌名字（PTR/CNAME/NS/DNAME）、
//     SRV（6 字节前缀 + 内嵌目标名）
//
// 构造与解析全部经由 github.com/miekg/dns，上层组件只比较和哈希记录，
// 不关心线格式。
//
// # 使用示例
//
//	rec, err := rr.NewA("host.local", netip.MustParseAddr("192.0.2.1"), 120)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(rec.Key, rec.Name.Hash())
package rr
