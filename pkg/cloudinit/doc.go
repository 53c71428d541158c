// Package cloudinit 提供 cloud-init 配置生成器
//
// 用于生成桌面虚拟机首次启动时的 user-data 和 meta-data。
// user-data 以 #cloud-config 开头，可直接作为创建虚拟机时的 userdata 传入。
//
// 使用方式：
//
//	gen := cloudinit.NewGenerator()
//	content, err := gen.GenerateDesktopUserData(&cloudinit.DesktopConfig{
//	    Hostname:     "vdg-k3x9f2a",
//	    Username:     "vdiuser",
//	    Password:     "plaintext",
//	    Timezone:     "Australia/Melbourne",
//	    PhoneHomeURL: "https://vdm.example.com/callback/phone-home",
//	    NotifyURL:    "https://vdm.example.com/callback/notify",
//	})
package cloudinit
