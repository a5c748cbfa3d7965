package opencv

import (
	"os"
	"runtime"
	"strings"

	"face-attendance-go/config"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DNN-Backend-Typen für die Konfiguration
const (
	BackendDefault = "default"
	BackendCUDA    = "cuda"
	BackendOpenCL  = "opencl"
	TargetCPU      = "cpu"
	TargetCUDA     = "cuda"
	TargetOpenCL   = "opencl"
)

// selectBackend wählt Backend und Target für das Embedding-Netz anhand der
// Konfiguration und der erkannten Hardware
func selectBackend(cfg config.OpenCVConfig) (gocv.NetBackendType, gocv.NetTargetType) {
	backend := gocv.NetBackendDefault
	target := gocv.NetTargetCPU

	if cfg.Backend == "" || cfg.Backend == BackendDefault {
		if !cfg.UseGPU {
			return backend, target
		}
		if haveNvidiaGPU() {
			log.Info("NVIDIA GPU erkannt, verwende CUDA-Backend")
			return gocv.NetBackendCUDA, gocv.NetTargetCUDA
		}
		if haveAMDGPU() {
			log.Info("AMD GPU erkannt, verwende OpenCL-Target")
			return gocv.NetBackendOpenCV, gocv.NetTargetFP32
		}
		if runtime.GOOS == "darwin" && strings.HasPrefix(runtime.GOARCH, "arm") {
			log.Info("Apple Silicon erkannt, verwende optimierte CPU-Version")
			return backend, target
		}
		log.Warn("GPU-Nutzung aktiviert, aber keine unterstützte GPU erkannt. Verwende CPU.")
		return backend, target
	}

	switch cfg.Backend {
	case BackendCUDA:
		backend = gocv.NetBackendCUDA
	case BackendOpenCL:
		backend = gocv.NetBackendOpenCV
	default:
		log.Warnf("Unbekanntes Backend '%s' konfiguriert, verwende Standard", cfg.Backend)
	}

	switch cfg.Target {
	case TargetCUDA:
		target = gocv.NetTargetCUDA
	case TargetOpenCL:
		target = gocv.NetTargetFP32 // DNN_TARGET_OPENCL
	case TargetCPU, "":
		target = gocv.NetTargetCPU
	default:
		log.Warnf("Unbekanntes Target '%s' konfiguriert, verwende CPU", cfg.Target)
	}
	return backend, target
}

// haveNvidiaGPU prüft, ob eine NVIDIA-GPU verfügbar ist
func haveNvidiaGPU() bool {
	if os.Getenv("NVIDIA_VISIBLE_DEVICES") != "" || os.Getenv("NVIDIA_DRIVER_CAPABILITIES") != "" {
		log.Info("NVIDIA-Docker-Umgebung erkannt über Umgebungsvariablen")
		return true
	}

	paths := []string{
		"/usr/local/cuda/lib64/libcudart.so",
		"/usr/lib/x86_64-linux-gnu/libcuda.so",
		"/usr/lib/libcuda.so",
		"/usr/bin/nvidia-smi",
		"/usr/local/bin/nvidia-smi",
	}
	if runtime.GOOS == "windows" {
		paths = []string{
			"C:\\Program Files\\NVIDIA Corporation\\NVSMI\\nvidia-smi.exe",
			"C:\\Windows\\System32\\nvidia-smi.exe",
		}
	}
	for _, path := range paths {
		if fileExists(path) {
			log.Infof("NVIDIA-Komponente gefunden: %s", path)
			return true
		}
	}
	return false
}

// haveAMDGPU prüft, ob eine AMD-GPU verfügbar ist
func haveAMDGPU() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	return fileExists("/dev/kfd") || fileExists("/dev/dri/renderD128")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
